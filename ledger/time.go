package ledger

import "time"

// =============================================================================
// DATE - Day-granular point in time, always UTC
// =============================================================================

// Date is a calendar day in UTC. Every date-to-(year, month) bucketing in the
// engine goes through this type so ingestion, aggregation, and reporting all
// use the same calendar.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates any timestamp to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date { return DateOf(time.Now()) }

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	u := d.Time.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.normalize().AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.normalize().AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int         { return d.Time.UTC().Year() }
func (d Date) Month() time.Month { return d.Time.UTC().Month() }
func (d Date) Day() int          { return d.Time.UTC().Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// ParseDate parses an ISO date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// =============================================================================
// MONTH KEY - The (year, month) bucket
// =============================================================================

// MonthKey identifies one month bucket. It is the aggregation key for
// MonthlyMetric and the unit of replacement for worklog re-syncs.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf is the single bucketing function: the UTC month of a timestamp.
func MonthOf(t time.Time) MonthKey {
	u := t.UTC()
	return MonthKey{Year: u.Year(), Month: u.Month()}
}

// BucketOf returns the month bucket of a date.
func BucketOf(d Date) MonthKey {
	return MonthKey{Year: d.Year(), Month: d.Month()}
}

// First returns the first day of the month. Period containment of a month
// bucket is decided by this date falling inside the window.
func (m MonthKey) First() Date { return NewDate(m.Year, m.Month, 1) }

// Last returns the last day of the month.
func (m MonthKey) Last() Date { return m.First().AddMonths(1).AddDays(-1) }

// Next returns the following month.
func (m MonthKey) Next() MonthKey { return BucketOf(m.First().AddMonths(1)) }

func (m MonthKey) Before(other MonthKey) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m MonthKey) Equal(other MonthKey) bool {
	return m.Year == other.Year && m.Month == other.Month
}

func (m MonthKey) String() string { return m.First().Time.Format("2006-01") }

// MonthsBetween returns every month bucket from `from` to `to` inclusive.
func MonthsBetween(from, to Date) []MonthKey {
	var months []MonthKey
	current := BucketOf(from)
	last := BucketOf(to)
	for {
		months = append(months, current)
		if current.Equal(last) || last.Before(current) {
			break
		}
		current = current.Next()
	}
	return months
}
