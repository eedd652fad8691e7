// Package normalize cleans raw job fields before they reach storage.
// Scraper output is messy: padded whitespace, literal "N/A" placeholders
// and timestamps in whatever format the source happened to emit. Every
// rule here is idempotent, so the storage layer can re-run the whole
// pass as a final guard without changing already-clean data.
package normalize

import (
	"net/url"
	"strings"
	"time"

	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
)

// timestampLayouts are tried in order; the first successful parse wins.
// Layouts without a zone are anchored in the configured location.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalizer applies the per-field cleaning rules. The location is used
// to anchor naive timestamps.
type Normalizer struct {
	loc *time.Location
}

func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// Text trims the value and maps empty or "N/A" (any case) to nil.
func (n *Normalizer) Text(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "N/A") {
		return nil
	}
	return &v
}

// CollapsedText applies Text and additionally collapses internal runs of
// whitespace to single spaces. Used for title/position fields, where the
// scraper emits irregular spacing.
func (n *Normalizer) CollapsedText(s *string) *string {
	cleaned := n.Text(s)
	if cleaned == nil {
		return nil
	}
	v := strings.Join(strings.Fields(*cleaned), " ")
	if v == "" {
		return nil
	}
	return &v
}

// URL applies the Text rules to URL-like fields. Structural validation
// is advisory only (see IsURL): an invalid URL is kept verbatim so
// downstream consumers can decide what to do with it.
func (n *Normalizer) URL(s *string) *string {
	return n.Text(s)
}

// IsURL reports whether s is structurally a URL with a scheme and host.
// Callers use it for logging, never for rejection.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Timestamp parses free-text timestamps by trying each known layout in
// order. A naive parse is anchored in the configured location. When no
// layout matches, the field becomes absent rather than an error.
func (n *Normalizer) Timestamp(s *string) *time.Time {
	cleaned := n.Text(s)
	if cleaned == nil {
		return nil
	}
	for _, layout := range timestampLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, *cleaned); err == nil {
				return &t
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, *cleaned, n.loc); err == nil {
			return &t
		}
	}
	return nil
}

// Record applies the field rules to a stored record in place. Safe to
// call on already-normalized data.
func (n *Normalizer) Record(j *models.JobPosting) {
	j.JobTitle = n.CollapsedText(j.JobTitle)
	j.CompanyName = n.Text(j.CompanyName)
	j.CompanyLogoURL = n.URL(j.CompanyLogoURL)
	j.JobURL = n.URL(j.JobURL)
	j.Vacancies = n.Text(j.Vacancies)
	j.Deadline = n.Text(j.Deadline)
	j.PostedDate = n.Text(j.PostedDate)
}

// Submission converts an incoming submission to a JobPosting with all
// field rules applied, including the timestamp parse chain.
func (n *Normalizer) Submission(s models.JobSubmission) models.JobPosting {
	job := models.JobPosting{
		JobTitle:       s.Title(),
		CompanyName:    s.CompanyName,
		CompanyLogoURL: s.CompanyLogoURL,
		JobURL:         s.JobURL,
		Vacancies:      s.Vacancies,
		Deadline:       s.Deadline,
		PostedDate:     s.PostedDate,
		ScrapedAt:      n.Timestamp(s.ScrapedAt),
	}
	n.Record(&job)
	return job
}
