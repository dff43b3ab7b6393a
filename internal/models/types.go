package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// PersonTypeList is a set of membership types stored as a TEXT[] column.
// An empty list means "any type".
type PersonTypeList []PersonType

// Contains reports whether t is in the list; an empty list contains everything.
func (l PersonTypeList) Contains(t PersonType) bool {
	if len(l) == 0 {
		return true
	}
	for _, item := range l {
		if item == t {
			return true
		}
	}
	return false
}

// Scan implements sql.Scanner.
func (l *PersonTypeList) Scan(src any) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("scan person types: %w", err)
	}
	out := make(PersonTypeList, 0, len(raw))
	for _, v := range raw {
		out = append(out, PersonType(v))
	}
	*l = out
	return nil
}

// Value implements driver.Valuer.
func (l PersonTypeList) Value() (driver.Value, error) {
	raw := make(pq.StringArray, 0, len(l))
	for _, v := range l {
		raw = append(raw, string(v))
	}
	return raw.Value()
}

// WeekdaySet is an ordered set of weekdays stored as a SMALLINT[] column
// (0 = Sunday, matching time.Weekday).
type WeekdaySet []time.Weekday

// NewWeekdaySet returns a sorted, de-duplicated set.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	seen := map[time.Weekday]bool{}
	out := make(WeekdaySet, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports membership.
func (s WeekdaySet) Has(d time.Weekday) bool {
	for _, v := range s {
		if v == d {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every day of s is also in other.
func (s WeekdaySet) SubsetOf(other WeekdaySet) bool {
	for _, v := range s {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

// Minus returns the days of s that are not in other.
func (s WeekdaySet) Minus(other WeekdaySet) WeekdaySet {
	var out WeekdaySet
	for _, v := range s {
		if !other.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

// Scan implements sql.Scanner.
func (s *WeekdaySet) Scan(src any) error {
	var raw pq.Int64Array
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("scan weekdays: %w", err)
	}
	days := make([]time.Weekday, 0, len(raw))
	for _, v := range raw {
		if v < 0 || v > 6 {
			return fmt.Errorf("scan weekdays: %d out of range", v)
		}
		days = append(days, time.Weekday(v))
	}
	*s = NewWeekdaySet(days...)
	return nil
}

// Value implements driver.Valuer.
func (s WeekdaySet) Value() (driver.Value, error) {
	raw := make(pq.Int64Array, 0, len(s))
	for _, v := range s {
		raw = append(raw, int64(v))
	}
	return raw.Value()
}

// ClockTime is a time of day with minute precision, stored in TIME columns
// and serialised as "HH:MM".
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS".
func ParseClockTime(value string) (ClockTime, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid time of day %q", value)
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

// Before compares two times of day.
func (c ClockTime) Before(other ClockTime) bool { return c.Minutes() < other.Minutes() }

// On anchors the time of day to a calendar date in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Scan implements sql.Scanner.
func (c *ClockTime) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return c.scanString(string(v))
	case string:
		return c.scanString(v)
	case time.Time:
		*c = ClockTime{Hour: v.Hour(), Minute: v.Minute()}
		return nil
	default:
		return fmt.Errorf("scan clock time: unsupported type %T", src)
	}
}

func (c *ClockTime) scanString(v string) error {
	parsed, err := ParseClockTime(v)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer.
func (c ClockTime) Value() (driver.Value, error) { return c.String() + ":00", nil }

// MarshalJSON implements json.Marshaler.
func (c ClockTime) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// UnmarshalJSON implements json.Unmarshaler.
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return c.scanString(s)
}

// Date is a calendar day serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.Format(DateLayout)) }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}
	d.Time = t
	return nil
}

// DateOnly truncates t to midnight UTC of the same calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LocalDay returns the calendar day of t as observed in loc.
func LocalDay(t time.Time, loc *time.Location) time.Time {
	return DateOnly(t.In(loc))
}
