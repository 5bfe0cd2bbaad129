package calculator

import (
	"testing"
	"time"

	"MarketSpider/internal/model"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(at time.Time, high, low, highPct, lowPct float64, volume int64) model.PriceRow {
	return model.PriceRow{
		Symbol:   "QQQ",
		Datetime: null.TimeFrom(at),
		High:     dec(high),
		Low:      dec(low),
		HighPct:  dec(highPct),
		LowPct:   dec(lowPct),
		Volume:   null.IntFrom(volume),
	}
}

func utc(d, hour, minute int) time.Time {
	return time.Date(2024, time.March, d, hour, minute, 0, 0, time.UTC)
}

func TestAggregateExtendedHours(t *testing.T) {
	ny := newYork(t)
	// early March is EST, UTC-5
	series := model.Series{
		bar(utc(4, 12, 0), 103, 101, 0.03, 0.01, 0),    // 07:00 pre
		bar(utc(4, 13, 0), 100, 99, 0.0, -0.01, 0),     // 08:00 pre
		bar(utc(4, 14, 30), 100.5, 100, 0.005, 0, 0),   // 09:30 pre, inclusive
		bar(utc(4, 15, 0), 120, 80, 0.2, -0.2, 1000),   // 10:00 regular
		bar(utc(4, 18, 0), 130, 70, 0.3, -0.3, 0),      // 13:00 zero volume, neither window
		bar(utc(4, 21, 0), 101, 98, 0.01, -0.02, 0),    // 16:00 post, inclusive
		bar(utc(4, 22, 0), 100.5, 95, 0.005, -0.05, 0), // 17:00 post
	}
	daily := model.Series{
		{Symbol: "^IXIC", Date: day(4), Open: dec(100)},
		{Symbol: "^IXIC", Date: day(5), Open: dec(50)},
	}
	opts := DefaultOptions()
	opts.Location = ny

	out, err := AggregateExtendedHours(series, daily, opts)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, day(4), first.Date)
	assertDec(t, "103", first.PreHigh)
	assertDec(t, "99", first.PreLow)
	assertDec(t, "0.03", first.PreHighPct)
	assertDec(t, "-0.01", first.PreLowPct)
	// |100-103| > |100-99|
	assertDec(t, "0.03", first.PreChange)

	assertDec(t, "101", first.PostHigh)
	assertDec(t, "95", first.PostLow)
	// |100-101| < |100-95|
	assertDec(t, "-0.05", first.PostChange)

	second := out[1]
	assert.Equal(t, day(5), second.Date)
	assert.False(t, second.PreHigh.Valid)
	assert.False(t, second.PostChange.Valid)
}

func TestAggregateExtendedHours_CustomCutoffsAndMissingOpen(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	series := model.Series{
		bar(time.Date(2024, time.March, 4, 8, 40, 0, 0, seoul), 10, 9, 0.1, -0.1, 0),
		bar(time.Date(2024, time.March, 4, 15, 40, 0, 0, seoul), 11, 8, 0.2, -0.2, 0),
	}
	opts := DefaultOptions()
	opts.Location = seoul
	opts.PreMarketCutoff = Clock{Hour: 9}
	opts.PostMarketCutoff = Clock{Hour: 15, Minute: 30}

	out, err := AggregateExtendedHours(series, nil, opts)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assertDec(t, "10", out[0].PreHigh)
	assertDec(t, "8", out[0].PostLow)
	assert.False(t, out[0].PreChange.Valid, "no open to compare against")
}

func TestAggregateExtendedHours_WithoutPercentages(t *testing.T) {
	row := model.PriceRow{
		Symbol:   "QQQ",
		Datetime: null.TimeFrom(utc(4, 12, 0)),
		High:     dec(10),
		Low:      dec(9),
		Volume:   null.IntFrom(0),
	}
	opts := DefaultOptions()
	opts.Location = newYork(t)

	out, err := AggregateExtendedHours(model.Series{row}, model.Series{{Date: day(4), Open: dec(9.5)}}, opts)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assertDec(t, "10", out[0].PreHigh)
	assert.False(t, out[0].PreHighPct.Valid)
	assert.False(t, out[0].PreChange.Valid)
}

func TestPartitionBySymbol(t *testing.T) {
	table := model.Table{
		{Symbol: "A", Date: day(2)},
		{Symbol: "B", Date: day(1)},
		{Symbol: "A", Date: day(3)},
	}
	parts := PartitionBySymbol(table, ColumnSymbol)
	require.Len(t, parts, 2)

	require.Len(t, parts[0], 2)
	assert.Equal(t, "A", parts[0][0].Symbol)
	assert.Equal(t, day(2), parts[0][0].Date)
	assert.Equal(t, day(3), parts[0][1].Date)

	require.Len(t, parts[1], 1)
	assert.Equal(t, "B", parts[1][0].Symbol)
}

func TestPartitionBySymbol_SortsAndKeepsTies(t *testing.T) {
	table := model.Table{
		{Code: "005930", Date: day(3), ID: "late"},
		{Code: "005930", Date: day(1), ID: "first"},
		{Code: "005930", Date: day(1), ID: "second"},
	}
	parts := PartitionBySymbol(table, ColumnCode)
	require.Len(t, parts, 1)
	ids := []string{parts[0][0].ID, parts[0][1].ID, parts[0][2].ID}
	assert.Equal(t, []string{"first", "second", "late"}, ids)
}

func TestPartitionBySymbol_MissingColumn(t *testing.T) {
	table := model.Table{
		{Code: "005930", Date: day(3)},
		{Code: "000660", Date: day(1)},
	}
	parts := PartitionBySymbol(table, ColumnSymbol)
	require.Len(t, parts, 1)
	assert.Equal(t, model.Series(table), parts[0])
}

func TestDeduplicate(t *testing.T) {
	in := model.Series{
		{Symbol: "A", Date: day(1), Close: dec(1)},
		{Symbol: "A", Date: day(2), Close: dec(2)},
		{Symbol: "A", Date: day(2), Close: dec(3)},
	}
	out := Deduplicate(in)
	require.Len(t, out, 2)
	assertDec(t, "3", out[1].Close)
}
