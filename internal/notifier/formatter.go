package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"MarketSpider/internal/model"

	"github.com/shopspring/decimal"
)

// FormatDailyReport formats one market session into a Telegram HTML message.
func FormatDailyReport(r model.DailyReport) string {
	var b strings.Builder
	idx := r.Index

	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n\n", html.EscapeString(r.Market), r.Date().Format(time.DateOnly)))
	b.WriteString(fmt.Sprintf("Close: %s (%s)\n", price(idx.Close), pct(idx.Change)))
	b.WriteString(fmt.Sprintf("Open: %s | Gap: %s\n", price(idx.Open), pct(idx.Gap)))
	b.WriteString(fmt.Sprintf("High: %s (%s) | Low: %s (%s)\n", price(idx.High), pct(idx.HighPct), price(idx.Low), pct(idx.LowPct)))
	if idx.DrawDown.Valid {
		b.WriteString(fmt.Sprintf("Drawdown: %s from %s\n", pct(idx.DrawDown), price(idx.MaxPrice)))
	}

	if ext := r.Extended; ext != nil && (ext.PreChange.Valid || ext.PostChange.Valid) {
		b.WriteString("\n🌙 <b>Extended hours</b>\n")
		if ext.PreChange.Valid {
			b.WriteString(fmt.Sprintf("  Pre: %s (high %s, low %s)\n", pct(ext.PreChange), pct(ext.PreHighPct), pct(ext.PreLowPct)))
		}
		if ext.PostChange.Valid {
			b.WriteString(fmt.Sprintf("  Post: %s (high %s, low %s)\n", pct(ext.PostChange), pct(ext.PostHighPct), pct(ext.PostLowPct)))
		}
	}

	if top := r.Top; top != nil {
		b.WriteString(fmt.Sprintf("\n🏆 %s: %s (%s)\n", html.EscapeString(top.Symbol), price(top.Close), pct(top.Change)))
	}

	if names := r.IndicatorNames(); len(names) > 0 {
		b.WriteString("\n📈 <b>Indicators</b>\n")
		for _, name := range names {
			v := r.Indicators[name]
			text := price(v)
			if strings.HasSuffix(name, "Change") {
				text = pct(v)
			}
			b.WriteString(fmt.Sprintf("  %s: %s\n", html.EscapeString(name), text))
		}
	}
	return b.String()
}

// FormatFailure formats a failed job run.
func FormatFailure(job string, err error) string {
	return fmt.Sprintf("❌ <b>%s</b> failed\n\n%s", html.EscapeString(job), html.EscapeString(err.Error()))
}

// FormatJobs lists the scheduled jobs and their next run.
func FormatJobs(next map[string]time.Time) string {
	if len(next) == 0 {
		return "No jobs scheduled"
	}
	names := make([]string, 0, len(next))
	for name := range next {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("🗓 <b>Scheduled jobs</b>\n\n")
	for _, name := range names {
		b.WriteString(fmt.Sprintf("  %s: next %s\n", html.EscapeString(name), next[name].Format("2006-01-02 15:04")))
	}
	b.WriteString("\nRun one now with /run &lt;name&gt;")
	return b.String()
}

func price(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

func pct(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	v := d.Decimal.Mul(decimal.NewFromInt(100))
	sign := ""
	if v.IsPositive() {
		sign = "+"
	}
	return sign + v.StringFixed(2) + "%"
}
