package calendar

import (
	"errors"
	"testing"
	"time"

	"MarketSpider/internal/model"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign_US(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		dir  Direction
		want time.Time
	}{
		{"saturday back", date(2024, 7, 6), Previous, date(2024, 7, 5)},
		{"independence back", date(2024, 7, 4), Previous, date(2024, 7, 3)},
		{"independence forward", date(2024, 7, 4), Next, date(2024, 7, 5)},
		{"trading day unchanged", date(2024, 7, 3), Previous, date(2024, 7, 3)},
		{"good friday", date(2024, 3, 29), Previous, date(2024, 3, 28)},
		{"thanksgiving", date(2024, 11, 28), Next, date(2024, 11, 29)},
		{"juneteenth observed", date(2022, 6, 20), Previous, date(2022, 6, 17)},
		{"christmas observed", date(2022, 12, 26), Next, date(2022, 12, 27)},
		{"saturday new year keeps friday", date(2022, 1, 1), Previous, date(2021, 12, 31)},
		{"mourning bush", date(2018, 12, 5), Previous, date(2018, 12, 4)},
		{"mourning carter", date(2025, 1, 9), Next, date(2025, 1, 10)},
		{"hurricane sandy", date(2012, 10, 30), Previous, date(2012, 10, 26)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Align(tt.in, US, tt.dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlign_KR(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		dir  Direction
		want time.Time
	}{
		{"seollal substitute", date(2024, 2, 12), Next, date(2024, 2, 13)},
		{"seollal block back", date(2024, 2, 12), Previous, date(2024, 2, 8)},
		{"chuseok substitute", date(2025, 10, 8), Next, date(2025, 10, 10)},
		{"children's day substitute", date(2024, 5, 6), Next, date(2024, 5, 7)},
		{"year end closing on friday", date(2023, 12, 31), Previous, date(2023, 12, 28)},
		{"year end closing", date(2024, 12, 31), Next, date(2025, 1, 2)},
		{"hangul day substitute", date(2022, 10, 10), Previous, date(2022, 10, 7)},
		{"election", date(2024, 4, 10), Previous, date(2024, 4, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Align(tt.in, KR, tt.dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlign_UnknownCalendar(t *testing.T) {
	_, err := Align(date(2024, 1, 2), "JP", Previous)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))

	_, err = IsTradingDay(date(2024, 1, 2), "us")
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))
}

func TestAlign_Idempotent(t *testing.T) {
	for _, id := range []string{US, KR} {
		for _, dir := range []Direction{Previous, Next} {
			d := date(2023, 12, 1)
			for i := 0; i < 120; i++ {
				once, err := Align(d, id, dir)
				require.NoError(t, err)
				twice, err := Align(once, id, dir)
				require.NoError(t, err)
				assert.Equal(t, once, twice, "%s %s %s", id, dir, d.Format(time.DateOnly))

				ok, err := IsTradingDay(once, id)
				require.NoError(t, err)
				assert.True(t, ok)
				d = d.AddDate(0, 0, 1)
			}
		}
	}
}

func TestAlign_KeepsLocalDate(t *testing.T) {
	seoul := markets[KR].Location
	got, err := Align(time.Date(2024, 3, 4, 8, 0, 0, 0, seoul), KR, Previous)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 4), got)
}

func TestLatestSession(t *testing.T) {
	ny := markets[US].Location
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"after close", time.Date(2024, 7, 5, 17, 0, 0, 0, ny), date(2024, 7, 5)},
		{"before close", time.Date(2024, 7, 5, 10, 0, 0, 0, ny), date(2024, 7, 3)},
		{"monday morning", time.Date(2024, 7, 8, 9, 0, 0, 0, ny), date(2024, 7, 5)},
		{"utc already next day", time.Date(2024, 7, 9, 1, 0, 0, 0, time.UTC), date(2024, 7, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LatestSession(tt.now, US)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 7, 8, 9, 0, 0, 0, markets[US].Location)

	from, to, err := Window(null.Time{}, null.Time{}, now, US)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 7, 3), from)
	assert.Equal(t, date(2024, 7, 5), to)

	// Independence Day start moves forward, Sunday end moves back
	from, to, err = Window(null.TimeFrom(date(2024, 7, 4)), null.TimeFrom(date(2024, 7, 7)), now, US)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 7, 5), from)
	assert.Equal(t, date(2024, 7, 5), to)

	from, to, err = Window(null.TimeFrom(date(2024, 7, 4)), null.TimeFrom(date(2024, 7, 9)), now, US)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 7, 5), from)
	assert.Equal(t, date(2024, 7, 9), to)

	// a weekend-only window collapses onto the Friday before it
	from, to, err = Window(null.TimeFrom(date(2024, 7, 6)), null.TimeFrom(date(2024, 7, 7)), now, US)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 7, 5), from)
	assert.Equal(t, date(2024, 7, 5), to)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("prev")
	require.NoError(t, err)
	assert.Equal(t, Previous, d)

	_, err = ParseDirection("sideways")
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))
}
