package commands

import (
	"testing"
	"time"

	"MarketSpider/internal/calendar"
	"MarketSpider/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	from, to, err := parseWindow("2024-03-04", "")
	require.NoError(t, err)
	assert.True(t, from.Valid)
	assert.Equal(t, time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), from.Time)
	assert.False(t, to.Valid)

	_, _, err = parseWindow("2024-03-04", "03/08/2024")
	assert.Error(t, err)
}

func TestPriceJobConfig(t *testing.T) {
	defer func() {
		pricesJob, pricesProvider, pricesSymbols, pricesCalendar = "", "yahoo", nil, ""
	}()
	cfg := &config.Config{Prices: []config.PriceJobConfig{{Name: "us_daily", Provider: "yahoo", Symbols: []string{"AAPL"}}}}

	pricesJob = "us_daily"
	pc, err := priceJobConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, pc.Symbols)

	pricesJob = "missing"
	_, err = priceJobConfig(cfg)
	assert.Error(t, err)

	pricesJob = ""
	_, err = priceJobConfig(cfg)
	assert.Error(t, err, "neither --job nor --symbol")

	pricesProvider, pricesSymbols = "square", []string{"005930"}
	pc, err = priceJobConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, calendar.KR, pc.Calendar)
	assert.Equal(t, "square", pc.Provider)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "daily", "prices", "calendar"} {
		assert.True(t, names[want], want)
	}
	assert.Error(t, dailyCmd.Args(dailyCmd, []string{"dax"}))
	assert.NoError(t, dailyCmd.Args(dailyCmd, []string{"kospi"}))
}
