package models

import "time"

// JobPosting is the stored record shared by both job domains. Optional
// fields are pointers; a nil pointer means the source had no usable value
// (empty, whitespace or the "N/A" placeholder).
type JobPosting struct {
	ID             string     `json:"id" db:"id" bson:"_id"`
	JobTitle       *string    `json:"job_title" db:"job_title" bson:"job_title"`
	CompanyName    *string    `json:"company_name" db:"company_name" bson:"company_name"`
	CompanyLogoURL *string    `json:"company_logo_url" db:"company_logo_url" bson:"company_logo_url"`
	JobURL         *string    `json:"job_url" db:"job_url" bson:"job_url"`
	Vacancies      *string    `json:"vacancies" db:"vacancies" bson:"vacancies"`
	Deadline       *string    `json:"deadline" db:"deadline" bson:"deadline"`
	PostedDate     *string    `json:"posted_date" db:"posted_date" bson:"posted_date"`
	ScrapedAt      *time.Time `json:"scraped_at" db:"scraped_at" bson:"scraped_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// JobSubmission is the wire shape accepted by the send-data endpoint.
// ScrapedAt arrives as free text and is parsed best-effort downstream.
// "position" is accepted as an alias for "job_title".
type JobSubmission struct {
	JobTitle       *string `json:"job_title" validate:"omitempty,max=500"`
	Position       *string `json:"position" validate:"omitempty,max=500"`
	CompanyName    *string `json:"company_name" validate:"omitempty,max=500"`
	CompanyLogoURL *string `json:"company_logo_url" validate:"omitempty,max=1000"`
	JobURL         *string `json:"job_url" validate:"omitempty,max=1000"`
	Vacancies      *string `json:"vacancies" validate:"omitempty,max=200"`
	Deadline       *string `json:"deadline" validate:"omitempty,max=500"`
	PostedDate     *string `json:"posted_date" validate:"omitempty,max=200"`
	ScrapedAt      *string `json:"scraped_at" validate:"omitempty,max=100"`
}

// Title resolves the job_title/position alias pair, job_title winning.
func (s JobSubmission) Title() *string {
	if s.JobTitle != nil {
		return s.JobTitle
	}
	return s.Position
}

// SubmissionError records a single rejected batch element.
type SubmissionError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// SkippedItem reports a discarded duplicate.
type SkippedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult aggregates the outcome of one send-data request.
type BatchResult struct {
	Created []JobPosting      `json:"created"`
	Updated []JobPosting      `json:"updated"`
	Skipped []SkippedItem     `json:"skipped"`
	Errors  []SubmissionError `json:"errors,omitempty"`
}

// Stats is the aggregate summary over one job domain.
type Stats struct {
	TotalJobs     int64      `json:"total_jobs"`
	Today         int64      `json:"today"`
	ThisWeek      int64      `json:"this_week"`
	ThisMonth     int64      `json:"this_month"`
	WithVacancies int64      `json:"with_vacancies"`
	WithDeadlines int64      `json:"with_deadlines"`
	LastUpdated   *time.Time `json:"last_updated"`
}
