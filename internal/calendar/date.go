package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar date without a time of day or a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// MustDate builds a Date and panics on invalid input. Intended for tests and constants.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// At returns the instant at hour:min of this date in loc.
func (d Date) At(hour, min int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, min, 0, 0, loc)
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

// IsWorkingDay reports whether d falls on Monday through Friday.
func (d Date) IsWorkingDay() bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (d Date) Before(o Date) bool {
	return d.midnightUTC().Before(o.midnightUTC())
}

func (d Date) After(o Date) bool {
	return d.midnightUTC().After(o.midnightUTC())
}

func (d Date) Equal(o Date) bool {
	return d == o
}

// NextWorkingDay returns the first working day strictly after d.
func (d Date) NextWorkingDay() Date {
	next := d.AddDays(1)
	for !next.IsWorkingDay() {
		next = next.AddDays(1)
	}
	return next
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CountWorkingDays counts the Monday-Friday dates in [from, to] without
// materialising the range. It returns 0 when to is before from.
func CountWorkingDays(from, to Date) int {
	if to.Before(from) {
		return 0
	}
	span := int((to.midnightUTC().Unix()-from.midnightUTC().Unix())/(24*60*60)) + 1
	weeks := span / 7
	count := weeks * 5
	for cur := from.AddDays(weeks * 7); !cur.After(to); cur = cur.AddDays(1) {
		if cur.IsWorkingDay() {
			count++
		}
	}
	return count
}

// WorkingDays expands the inclusive range [from, to] into its Monday-Friday dates.
// It returns nil when to is before from.
func WorkingDays(from, to Date) []Date {
	var days []Date
	for cur := from; !cur.After(to); cur = cur.AddDays(1) {
		if cur.IsWorkingDay() {
			days = append(days, cur)
		}
	}
	return days
}
