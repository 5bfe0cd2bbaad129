package calendar

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"MarketSpider/internal/model"

	"github.com/guregu/null/v6"
)

// Calendar identifiers.
const (
	US = "US"
	KR = "KR"
)

// Direction selects which way Align walks.
type Direction string

const (
	Previous Direction = "previous"
	Next     Direction = "next"
)

// ParseDirection accepts "previous"/"prev" and "next".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "previous", "prev":
		return Previous, nil
	case "next":
		return Next, nil
	}
	return "", fmt.Errorf("direction %q: %w", s, model.ErrInvalidArgument)
}

// Market describes the session of one exchange calendar.
type Market struct {
	ID       string
	Location *time.Location
	CloseH   int
	CloseM   int
	holidays func(year int) map[time.Time]string

	mu    sync.Mutex
	years map[int]map[time.Time]string
}

var markets = map[string]*Market{
	US: {ID: US, Location: mustLoad("America/New_York"), CloseH: 16, holidays: usHolidays},
	KR: {ID: KR, Location: mustLoad("Asia/Seoul"), CloseH: 15, CloseM: 30, holidays: krHolidays},
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

// Lookup returns the market registered under id.
func Lookup(id string) (*Market, error) {
	m, ok := markets[id]
	if !ok {
		return nil, fmt.Errorf("calendar %q: %w", id, model.ErrInvalidArgument)
	}
	return m, nil
}

// Holiday returns the holiday name of date, or "" when the exchange is not closed for one.
func (m *Market) Holiday(date time.Time) string {
	d := model.DateOf(date, nil)
	return m.year(d.Year())[d]
}

func (m *Market) year(y int) map[time.Time]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.years == nil {
		m.years = make(map[int]map[time.Time]string)
	}
	h, ok := m.years[y]
	if !ok {
		h = m.holidays(y)
		m.years[y] = h
	}
	return h
}

// IsTradingDay reports whether the exchange holds a session on date.
func (m *Market) IsTradingDay(date time.Time) bool {
	d := model.DateOf(date, nil)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	return m.Holiday(d) == ""
}

// Align walks from date one day at a time until it lands on a trading day.
func (m *Market) Align(date time.Time, dir Direction) time.Time {
	step := -1
	if dir == Next {
		step = 1
	}
	d := model.DateOf(date, nil)
	for !m.IsTradingDay(d) {
		d = d.AddDate(0, 0, step)
	}
	return d
}

// LatestSession returns the most recent session that has closed by now.
func (m *Market) LatestSession(now time.Time) time.Time {
	local := now.In(m.Location)
	d := model.DateOf(local, nil)
	closed := local.Hour() > m.CloseH || (local.Hour() == m.CloseH && local.Minute() >= m.CloseM)
	if closed && m.IsTradingDay(d) {
		return d
	}
	return m.Align(d.AddDate(0, 0, -1), Previous)
}

// IsTradingDay reports whether date is a session of calendar id.
func IsTradingDay(date time.Time, id string) (bool, error) {
	m, err := Lookup(id)
	if err != nil {
		return false, err
	}
	return m.IsTradingDay(date), nil
}

// Align snaps date onto the nearest trading day of calendar id in direction dir.
func Align(date time.Time, id string, dir Direction) (time.Time, error) {
	m, err := Lookup(id)
	if err != nil {
		return time.Time{}, err
	}
	if dir != Previous && dir != Next {
		return time.Time{}, fmt.Errorf("direction %q: %w", dir, model.ErrInvalidArgument)
	}
	return m.Align(date, dir), nil
}

// LatestSession returns the most recent completed session of calendar id.
func LatestSession(now time.Time, id string) (time.Time, error) {
	m, err := Lookup(id)
	if err != nil {
		return time.Time{}, err
	}
	return m.LatestSession(now), nil
}

// Window resolves a query window onto sessions of calendar id. A given start
// moves forward onto the next session and a given end back onto the previous
// one; a window holding no session collapses onto end. A missing end
// defaults to the latest completed session and a missing start to the session
// before end, so the first row of the window has a previous close to work with.
func Window(start, end null.Time, now time.Time, id string) (time.Time, time.Time, error) {
	m, err := Lookup(id)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	var to time.Time
	if end.Valid {
		to = m.Align(end.Time, Previous)
	} else {
		to = m.LatestSession(now)
	}
	var from time.Time
	if start.Valid {
		from = m.Align(start.Time, Next)
	} else {
		from = m.Align(to.AddDate(0, 0, -1), Previous)
	}
	if from.After(to) {
		from = to
	}
	return from, to, nil
}
