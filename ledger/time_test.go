package ledger

import (
	"testing"
	"time"
)

func TestDateOfTruncatesToUTCDay(t *testing.T) {
	// GIVEN a timestamp late at night in UTC+2
	east := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2024, 2, 1, 1, 30, 0, 0, east)

	// WHEN truncated
	d := DateOf(ts)

	// THEN the UTC day is the previous calendar day
	if d.String() != "2024-01-31" {
		t.Errorf("date = %s, want 2024-01-31", d)
	}
}

func TestMonthOfUsesUTC(t *testing.T) {
	west := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2024, 1, 31, 23, 0, 0, 0, west)

	m := MonthOf(ts)

	if m.Year != 2024 || m.Month != time.February {
		t.Errorf("bucket = %v, want 2024-February", m)
	}
}

func TestMonthKeyBoundaries(t *testing.T) {
	feb := MonthKey{Year: 2024, Month: time.February}

	if feb.First().String() != "2024-02-01" {
		t.Errorf("first = %s", feb.First())
	}
	// 2024 is a leap year
	if feb.Last().String() != "2024-02-29" {
		t.Errorf("last = %s", feb.Last())
	}
	if next := feb.Next(); next.Year != 2024 || next.Month != time.March {
		t.Errorf("next = %v", next)
	}
	if dec := (MonthKey{Year: 2024, Month: time.December}).Next(); dec.Year != 2025 || dec.Month != time.January {
		t.Errorf("december next = %v", dec)
	}
}

func TestMonthsBetween(t *testing.T) {
	months := MonthsBetween(NewDate(2024, time.November, 15), NewDate(2025, time.February, 3))

	if len(months) != 4 {
		t.Fatalf("got %d months, want 4", len(months))
	}
	if months[0].String() != "2024-11" || months[3].String() != "2025-02" {
		t.Errorf("range = %v..%v", months[0], months[3])
	}

	single := MonthsBetween(NewDate(2024, time.March, 1), NewDate(2024, time.March, 31))
	if len(single) != 1 {
		t.Errorf("single month range = %d buckets", len(single))
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-30")
	if err != nil {
		t.Fatal(err)
	}
	if d.Year() != 2024 || d.Month() != time.June || d.Day() != 30 {
		t.Errorf("parsed = %s", d)
	}

	if _, err := ParseDate("30/06/2024"); err == nil {
		t.Error("expected rejection of non-ISO date")
	}
}

func TestAddMonthsFromMonthEnd(t *testing.T) {
	// Month arithmetic follows time.AddDate normalization.
	d := NewDate(2024, time.January, 31).AddMonths(1)
	if d.String() != "2024-03-02" {
		t.Errorf("jan 31 + 1 month = %s", d)
	}
}
