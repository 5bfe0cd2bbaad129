package pipeline

import (
	"fmt"
	"sort"

	"MarketSpider/internal/calendar"
	"MarketSpider/internal/model"
)

// Indicator is an auxiliary series joined onto a market's daily report by date.
type Indicator struct {
	Symbol string // Yahoo ticker
	Column string // report column holding the close
	Change string // optional report column holding the daily change
}

// Definition describes the instruments behind one daily market report.
type Definition struct {
	Market     string
	Symbol     string // main index
	Calendar   string
	Timezone   string
	Extended   string // intraday proxy for pre/post-market moves, empty when the market has none
	Indicators []Indicator
	Top        string // largest constituent, empty when not reported
}

var definitions = map[string]Definition{
	"nasdaq": {
		Market:   "NASDAQ",
		Symbol:   "^IXIC",
		Calendar: calendar.US,
		Timezone: "America/New_York",
		Extended: "QQQ",
		Indicators: []Indicator{
			{Symbol: "^VIX", Column: "VIX"},
			{Symbol: "DX-Y.NYB", Column: "USDX"},
			{Symbol: "^IRX", Column: "IRX"},
			{Symbol: "^TNX", Column: "TNX"},
			{Symbol: "CL=F", Column: "CL=F"},
			{Symbol: "BTC-USD", Column: "BTC-USD", Change: "BTC-Change"},
		},
	},
	"kospi": {
		Market:   "KOSPI",
		Symbol:   "^KS11",
		Calendar: calendar.KR,
		Timezone: "Asia/Seoul",
		Indicators: []Indicator{
			{Symbol: "^KS200", Column: "KS200"},
			{Symbol: "KRW=X", Column: "USD/KRW"},
			{Symbol: "^IXIC", Column: "NASDAQ"},
			{Symbol: "^HSI", Column: "HSI"},
		},
		Top: "005930.KS",
	},
	"kosdaq": {
		Market:   "KOSDAQ",
		Symbol:   "^KQ11",
		Calendar: calendar.KR,
		Timezone: "Asia/Seoul",
		Indicators: []Indicator{
			{Symbol: "^KQ100", Column: "KQ100"},
			{Symbol: "^KQ47", Column: "KQ47"},
			{Symbol: "^KQ26", Column: "KQ26"},
			{Symbol: "^KQ15", Column: "KQ15"},
			{Symbol: "KRW=X", Column: "USD/KRW"},
			{Symbol: "^IXIC", Column: "NASDAQ"},
			{Symbol: "^HSI", Column: "HSI"},
		},
		Top: "086520.KQ",
	},
}

// Lookup returns the definition registered under name (nasdaq, kospi, kosdaq).
func Lookup(name string) (Definition, error) {
	def, ok := definitions[name]
	if !ok {
		return Definition{}, fmt.Errorf("daily pipeline %q: %w", name, model.ErrInvalidArgument)
	}
	return def, nil
}

// Names lists the registered daily pipelines.
func Names() []string {
	out := make([]string, 0, len(definitions))
	for k := range definitions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
