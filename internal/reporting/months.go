package reporting

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/udaykiran1867/tce-project1/internal/shared"
)

// Period is one calendar month in the report timezone. End is exclusive.
type Period struct {
	Year  int
	Month time.Month
	Start time.Time
	End   time.Time
}

// Key renders the period as YYYY-MM.
func (p Period) Key() string {
	return p.Start.Format("2006-01")
}

// Label renders the period as e.g. "March 2026".
func (p Period) Label() string {
	return p.Start.Format("January 2006")
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// MonthPeriod builds the period for year/month in loc.
func MonthPeriod(year int, month time.Month, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Period{Year: start.Year(), Month: start.Month(), Start: start, End: start.AddDate(0, 1, 0)}
}

var monthFold = cases.Fold()

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// ResolveMonth turns the month/year query parameters into a period. A
// YYYY-MM value in month, then in year, wins; otherwise month is a number or
// an English month name and year defaults to the current year.
func ResolveMonth(month, year string, now time.Time, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	month = strings.TrimSpace(month)
	year = strings.TrimSpace(year)

	if strings.Contains(month, "-") {
		return parseYearMonth("month", month, loc)
	}
	if strings.Contains(year, "-") {
		return parseYearMonth("year", year, loc)
	}

	y := now.In(loc).Year()
	if year != "" {
		parsed, err := strconv.Atoi(year)
		if err != nil || parsed < 1 || parsed > 9999 {
			return Period{}, shared.Invalid("year", "must be a four digit year")
		}
		y = parsed
	}

	if month == "" {
		return Period{}, shared.Invalid("month", "is required")
	}
	if n, err := strconv.Atoi(month); err == nil {
		if n < 1 || n > 12 {
			return Period{}, shared.Invalid("month", "must be between 1 and 12")
		}
		return MonthPeriod(y, time.Month(n), loc), nil
	}
	m, ok := monthNames[monthFold.String(month)]
	if !ok {
		return Period{}, shared.Invalid("month", "unrecognised month name")
	}
	return MonthPeriod(y, m, loc), nil
}

func parseYearMonth(field, raw string, loc *time.Location) (Period, error) {
	parts := strings.SplitN(raw, "-", 3)
	if len(parts) < 2 {
		return Period{}, shared.Invalid(field, "must be YYYY-MM")
	}
	y, errY := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errY != nil || errM != nil || y < 1 || m < 1 || m > 12 {
		return Period{}, shared.Invalid(field, "must be YYYY-MM")
	}
	return MonthPeriod(y, time.Month(m), loc), nil
}
