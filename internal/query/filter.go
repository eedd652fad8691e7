// Package query defines the read-side filter model shared by every
// storage backend: a creation-time window plus case-insensitive
// substring matches on the free-text fields.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/AbdullahAlHarun-code/bdjobsapi/internal/errors"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
)

const dateLayout = "2006-01-02"

// Filter restricts a listing. Zero values mean "no constraint". The
// creation-time window is [From, Until): From inclusive, Until exclusive.
type Filter struct {
	From  *time.Time
	Until *time.Time

	Company   string
	Title     string
	Vacancies string
	Deadline  string
}

// RawParams echoes the query parameters a filter was built from, for
// inclusion in the response body.
type RawParams map[string]string

// ParseFilter builds a Filter from URL query parameters. Malformed
// days/start/end values are silently ignored; substring filters are
// taken verbatim. The returned RawParams carries the raw inputs.
func ParseFilter(q url.Values, now time.Time, loc *time.Location) (Filter, RawParams) {
	var f Filter
	raw := RawParams{
		"days":      q.Get("days"),
		"start":     q.Get("start"),
		"end":       q.Get("end"),
		"company":   q.Get("company"),
		"title":     firstNonEmpty(q.Get("title"), q.Get("position")),
		"vacancies": q.Get("vacancies"),
		"deadline":  q.Get("deadline"),
	}

	if days := raw["days"]; days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			from := now.AddDate(0, 0, -n)
			f.From = &from
		}
	}
	if start := raw["start"]; start != "" {
		if t, err := time.ParseInLocation(dateLayout, start, loc); err == nil {
			// A days-derived bound may already be present; the later of
			// the two wins, matching AND composition.
			if f.From == nil || t.After(*f.From) {
				f.From = &t
			}
		}
	}
	if end := raw["end"]; end != "" {
		if t, err := time.ParseInLocation(dateLayout, end, loc); err == nil {
			// end is inclusive of the whole day.
			until := t.AddDate(0, 0, 1)
			f.Until = &until
		}
	}

	f.Company = strings.TrimSpace(raw["company"])
	f.Title = strings.TrimSpace(raw["title"])
	f.Vacancies = strings.TrimSpace(raw["vacancies"])
	f.Deadline = strings.TrimSpace(raw["deadline"])
	return f, raw
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Today filters to records created on the current calendar date.
func Today(now time.Time, loc *time.Location) Filter {
	return dayWindow(now.In(loc))
}

// Yesterday filters to records created on the previous calendar date.
func Yesterday(now time.Time, loc *time.Location) Filter {
	return dayWindow(now.In(loc).AddDate(0, 0, -1))
}

// LastWeek filters to records created in the last 7 days.
func LastWeek(now time.Time) Filter {
	from := now.AddDate(0, 0, -7)
	return Filter{From: &from}
}

// ThisMonth filters from the first of the current month at midnight.
func ThisMonth(now time.Time, loc *time.Location) Filter {
	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Filter{From: &from}
}

// OnDate filters to one explicit calendar date. A malformed date string
// is a validation error, unlike the silently-ignored optional filters.
func OnDate(s string, loc *time.Location) (Filter, error) {
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return Filter{}, apperrors.InvalidInput(
			fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s), err)
	}
	return dayWindow(t), nil
}

func dayWindow(t time.Time) Filter {
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	until := from.AddDate(0, 0, 1)
	return Filter{From: &from, Until: &until}
}

// Matches reports whether a record satisfies the filter. This is the
// reference semantics; SQL and bson translations in the backends must
// agree with it.
func Matches(j models.JobPosting, f Filter) bool {
	if f.From != nil && j.CreatedAt.Before(*f.From) {
		return false
	}
	if f.Until != nil && !j.CreatedAt.Before(*f.Until) {
		return false
	}
	if !containsFold(j.CompanyName, f.Company) {
		return false
	}
	if !containsFold(j.JobTitle, f.Title) {
		return false
	}
	if !containsFold(j.Vacancies, f.Vacancies) {
		return false
	}
	if !containsFold(j.Deadline, f.Deadline) {
		return false
	}
	return true
}

func containsFold(field *string, substr string) bool {
	if substr == "" {
		return true
	}
	if field == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*field), strings.ToLower(substr))
}
