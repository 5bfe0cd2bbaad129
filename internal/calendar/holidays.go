package calendar

import (
	"time"

	"MarketSpider/internal/model"
)

func date(y int, m time.Month, d int) time.Time { return model.NewDate(y, m, d) }

// nthWeekday returns the n-th wd of month; n < 0 counts from the end.
func nthWeekday(y int, m time.Month, wd time.Weekday, n int) time.Time {
	if n > 0 {
		d := date(y, m, 1)
		d = d.AddDate(0, 0, (int(wd)-int(d.Weekday())+7)%7)
		return d.AddDate(0, 0, 7*(n-1))
	}
	d := date(y, m+1, 1).AddDate(0, 0, -1)
	d = d.AddDate(0, 0, -((int(d.Weekday()) - int(wd) + 7) % 7))
	return d.AddDate(0, 0, 7*(n+1))
}

// easter returns Easter Sunday (anonymous Gregorian algorithm).
func easter(y int) time.Time {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(y, time.Month(month), day)
}

// observed shifts a Saturday holiday to Friday and a Sunday holiday to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

// usHolidays lists NYSE full-day closures.
func usHolidays(y int) map[time.Time]string {
	h := make(map[time.Time]string)
	// a Saturday New Year is not made up on the prior Friday
	if ny := date(y, time.January, 1); ny.Weekday() != time.Saturday {
		h[observed(ny)] = "New Year's Day"
	}
	h[nthWeekday(y, time.January, time.Monday, 3)] = "Martin Luther King Jr. Day"
	h[nthWeekday(y, time.February, time.Monday, 3)] = "Washington's Birthday"
	h[easter(y).AddDate(0, 0, -2)] = "Good Friday"
	h[nthWeekday(y, time.May, time.Monday, -1)] = "Memorial Day"
	if y >= 2022 {
		h[observed(date(y, time.June, 19))] = "Juneteenth"
	}
	h[observed(date(y, time.July, 4))] = "Independence Day"
	h[nthWeekday(y, time.September, time.Monday, 1)] = "Labor Day"
	h[nthWeekday(y, time.November, time.Thursday, 4)] = "Thanksgiving Day"
	h[observed(date(y, time.December, 25))] = "Christmas Day"
	for d, name := range usSpecial {
		if d.Year() == y {
			h[d] = name
		}
	}
	return h
}

// One-off NYSE closures.
var usSpecial = map[time.Time]string{
	date(2012, 10, 29): "Hurricane Sandy",
	date(2012, 10, 30): "Hurricane Sandy",
	date(2018, 12, 5):  "Day of Mourning for George H.W. Bush",
	date(2025, 1, 9):   "Day of Mourning for Jimmy Carter",
}

type lunarDates struct {
	seollal, buddha, chuseok time.Time
}

// Lunar holidays of the KRX calendar. Years outside the table fall back to the
// solar holidays only.
var krLunar = map[int]lunarDates{
	2018: {date(2018, 2, 16), date(2018, 5, 22), date(2018, 9, 24)},
	2019: {date(2019, 2, 5), date(2019, 5, 12), date(2019, 9, 13)},
	2020: {date(2020, 1, 25), date(2020, 4, 30), date(2020, 10, 1)},
	2021: {date(2021, 2, 12), date(2021, 5, 19), date(2021, 9, 21)},
	2022: {date(2022, 2, 1), date(2022, 5, 8), date(2022, 9, 10)},
	2023: {date(2023, 1, 22), date(2023, 5, 27), date(2023, 9, 29)},
	2024: {date(2024, 2, 10), date(2024, 5, 15), date(2024, 9, 17)},
	2025: {date(2025, 1, 29), date(2025, 5, 5), date(2025, 10, 6)},
	2026: {date(2026, 2, 17), date(2026, 5, 24), date(2026, 9, 25)},
	2027: {date(2027, 2, 7), date(2027, 5, 13), date(2027, 9, 15)},
	2028: {date(2028, 1, 26), date(2028, 5, 2), date(2028, 10, 3)},
	2029: {date(2029, 2, 13), date(2029, 5, 20), date(2029, 9, 22)},
	2030: {date(2030, 2, 3), date(2030, 5, 9), date(2030, 9, 12)},
}

// Elections and one-off closures declared by decree.
var krSpecial = map[time.Time]string{
	date(2018, 6, 13):  "Local Election",
	date(2020, 4, 15):  "National Assembly Election",
	date(2020, 8, 17):  "Temporary Holiday",
	date(2022, 3, 9):   "Presidential Election",
	date(2022, 6, 1):   "Local Election",
	date(2023, 10, 2):  "Temporary Holiday",
	date(2024, 4, 10):  "National Assembly Election",
	date(2024, 10, 1):  "Armed Forces Day",
	date(2025, 1, 27):  "Temporary Holiday",
	date(2025, 5, 6):   "Substitute Holiday",
	date(2025, 6, 3):   "Presidential Election",
}

// krHolidays lists KRX closures.
func krHolidays(y int) map[time.Time]string {
	h := make(map[time.Time]string)
	type solar struct {
		d          time.Time
		name       string
		substitute int // first year a weekend occurrence is made up
	}
	fixed := []solar{
		{date(y, time.January, 1), "New Year's Day", 0},
		{date(y, time.March, 1), "Independence Movement Day", 2021},
		{date(y, time.May, 1), "Labor Day", 0},
		{date(y, time.May, 5), "Children's Day", 2014},
		{date(y, time.June, 6), "Memorial Day", 0},
		{date(y, time.August, 15), "Liberation Day", 2021},
		{date(y, time.October, 3), "National Foundation Day", 2021},
		{date(y, time.October, 9), "Hangul Day", 2021},
		{date(y, time.December, 25), "Christmas Day", 2023},
	}
	var pending []time.Time
	for _, s := range fixed {
		h[s.d] = s.name
		if s.substitute > 0 && y >= s.substitute && isWeekend(s.d) {
			pending = append(pending, s.d)
		}
	}

	if l, ok := krLunar[y]; ok {
		for _, block := range []struct {
			center time.Time
			name   string
		}{{l.seollal, "Seollal"}, {l.chuseok, "Chuseok"}} {
			sunday := false
			for i := -1; i <= 1; i++ {
				d := block.center.AddDate(0, 0, i)
				if d.Weekday() == time.Sunday {
					sunday = true
				}
				h[d] = block.name
			}
			if sunday {
				pending = append(pending, block.center.AddDate(0, 0, 1))
			}
		}
		h[l.buddha] = "Buddha's Birthday"
		if y >= 2023 && isWeekend(l.buddha) {
			pending = append(pending, l.buddha)
		}
	}

	for d, name := range krSpecial {
		if d.Year() == y {
			h[d] = name
		}
	}

	// each substitute takes the first weekday after its holiday that is still open
	for _, from := range pending {
		d := from.AddDate(0, 0, 1)
		for isWeekend(d) || h[d] != "" {
			d = d.AddDate(0, 0, 1)
		}
		h[d] = "Substitute Holiday"
	}

	// the exchange closes on the last business day of the year
	end := date(y, time.December, 31)
	for isWeekend(end) || h[end] != "" {
		end = end.AddDate(0, 0, -1)
	}
	h[end] = "Year-end Closing"
	return h
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}
