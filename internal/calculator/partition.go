package calculator

import (
	"sort"

	"MarketSpider/internal/model"
)

// Partition columns understood by PartitionBySymbol.
const (
	ColumnSymbol = "symbol"
	ColumnCode   = "code"
)

func columnValue(r model.PriceRow, column string) string {
	switch column {
	case ColumnSymbol:
		return r.Symbol
	case ColumnCode:
		return r.Code
	default:
		return ""
	}
}

// PartitionBySymbol splits a mixed table into single-instrument series keyed by
// column, in ascending key order, each stable-sorted by Datetime or else Date.
// When no row carries the column the whole table comes back as one partition.
func PartitionBySymbol(table model.Table, column string) []model.Series {
	groups := make(map[string]model.Series)
	for _, r := range table {
		if v := columnValue(r, column); v != "" {
			groups[v] = nil
		}
	}
	if len(groups) == 0 {
		return []model.Series{model.Series(table)}
	}

	for _, r := range table {
		k := columnValue(r, column)
		groups[k] = append(groups[k], r)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.Series, 0, len(keys))
	for _, k := range keys {
		s := groups[k]
		sort.SliceStable(s, func(i, j int) bool { return s[i].TimeKey().Before(s[j].TimeKey()) })
		out = append(out, s)
	}
	return out
}

// Deduplicate keeps the last row seen for every time key, so series merged from
// overlapping fetch windows stay strictly increasing.
func Deduplicate(series model.Series) model.Series {
	index := make(map[int64]int, len(series))
	out := make(model.Series, 0, len(series))
	for _, r := range series {
		k := r.TimeKey().UnixNano()
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}
