package logic

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

var locationCache sync.Map // map[string]*time.Location

// LoadLocation resolves an IANA zone name, falling back to UTC when the
// name is empty or unknown.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	if loc, ok := locationCache.Load(tz); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	locationCache.Store(tz, loc)
	return loc
}

// DateKeyInTimeZone returns the YYYY-MM-DD calendar date of t as seen in tz.
func DateKeyInTimeZone(t time.Time, tz string) string {
	return t.In(LoadLocation(tz)).Format(dateLayout)
}

// ParseDateKey parses a YYYY-MM-DD key as midnight UTC.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.Parse(dateLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// ShiftDateKey moves a date key by the given number of days.
func ShiftDateKey(key string, days int) (string, error) {
	t, err := ParseDateKey(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, days).Format(dateLayout), nil
}

// ISOWeekKey returns the ISO week (YYYY-Www) containing the given date key.
func ISOWeekKey(dateKey string) (string, error) {
	t, err := ParseDateKey(dateKey)
	if err != nil {
		return "", err
	}
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week), nil
}

// ISOWeekStart returns the Monday (UTC midnight) that starts an ISO week key.
func ISOWeekStart(weekKey string) (time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(weekKey, "%4d-W%2d", &year, &week); err != nil {
		return time.Time{}, fmt.Errorf("invalid week key %q: %w", weekKey, err)
	}
	if week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("invalid week key %q: week out of range", weekKey)
	}
	// January 4th is always in week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7), nil
}

// LongestWeeklyStreak returns the longest run of ISO weeks that are exactly
// seven days apart. Unparseable keys are ignored; duplicates count once.
func LongestWeeklyStreak(weekKeys []string) int {
	seen := make(map[time.Time]struct{}, len(weekKeys))
	starts := make([]time.Time, 0, len(weekKeys))
	for _, key := range weekKeys {
		start, err := ISOWeekStart(key)
		if err != nil {
			continue
		}
		if _, dup := seen[start]; dup {
			continue
		}
		seen[start] = struct{}{}
		starts = append(starts, start)
	}
	if len(starts) == 0 {
		return 0
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	longest, run := 1, 1
	for i := 1; i < len(starts); i++ {
		if starts[i].Sub(starts[i-1]) == 7*24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// WeekDateKeys returns the seven date keys, Monday first, of an ISO week.
func WeekDateKeys(weekKey string) ([]string, error) {
	start, err := ISOWeekStart(weekKey)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 7)
	for i := range keys {
		keys[i] = start.AddDate(0, 0, i).Format(dateLayout)
	}
	return keys, nil
}

// RollingWindowWeek reports the ISO week a seven-day window ending on
// dateKey falls in. ok is false unless dateKey is a Sunday, since any other
// window straddles two weeks.
func RollingWindowWeek(dateKey string) (weekKey string, ok bool, err error) {
	t, err := ParseDateKey(dateKey)
	if err != nil {
		return "", false, err
	}
	if t.Weekday() != time.Sunday {
		return "", false, nil
	}
	weekKey, err = ISOWeekKey(dateKey)
	return weekKey, err == nil, err
}
