package marketplace

import "time"

type JobStatus string

const (
	JobDraft       JobStatus = "draft"
	JobOpen        JobStatus = "open"
	JobClosingSoon JobStatus = "closingSoon"
	JobClosed      JobStatus = "closed"
)

type PayUnit string

const (
	PayPerHour    PayUnit = "hour"
	PayPerProject PayUnit = "project"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyVND Currency = "VND"
)

// Pay is the offered rate. Amounts in different currencies are not converted.
type Pay struct {
	Amount   float64  `json:"amount"`
	Unit     PayUnit  `json:"unit"`
	Currency Currency `json:"currency"`
}

// JobPosting is a unit of work published by a poster.
// Status as returned by the store is always the computed status; only
// draft/open/closed are ever stored.
type JobPosting struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Pay         *Pay      `json:"pay,omitempty"`
	Tags        []string  `json:"tags"`
	PostedAt    time.Time `json:"posted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExpiredAt   time.Time `json:"expired_at"`
	Status      JobStatus `json:"status"`
}

// Accepting reports whether applications can be submitted in this status.
func (s JobStatus) Accepting() bool {
	return s == JobOpen || s == JobClosingSoon
}

type ApplicantStatus string

const (
	ApplicantPending   ApplicantStatus = "pending"
	ApplicantApproved  ApplicantStatus = "approved"
	ApplicantRejected  ApplicantStatus = "rejected"
	ApplicantWithdrawn ApplicantStatus = "withdrawn"
)

// Terminal statuses never change again.
func (s ApplicantStatus) Terminal() bool {
	return s != ApplicantPending
}

// Applicant is one candidate's application to one job posting.
type Applicant struct {
	ID          string          `json:"id"`
	JobID       string          `json:"job_id"`
	CandidateID string          `json:"candidate_id"`
	PosterID    string          `json:"poster_id"`
	AppliedAt   time.Time       `json:"applied_at"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
	Status      ApplicantStatus `json:"status"`
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// CreateJobInput carries the poster's draft. Publish opens the job at once.
type CreateJobInput struct {
	OwnerID     string
	Title       string
	Description string
	Location    string
	Pay         *Pay
	Tags        []string
	ExpiredAt   time.Time
	Publish     bool
}

// UpdateJobInput patches a job. Nil fields are left as they are.
type UpdateJobInput struct {
	JobID       string     `json:"-"`
	Actor       string     `json:"-"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	Pay         *Pay       `json:"pay"`
	Tags        *[]string  `json:"tags"`
	ExpiredAt   *time.Time `json:"expired_at"`
}

type JobSort string

const (
	// SortDefault lists accepting jobs by soonest expiry, then closed jobs newest first.
	SortDefault    JobSort = ""
	SortNewest     JobSort = "newest"
	SortHighestPay JobSort = "highest_pay"
)

func (s JobSort) Valid() bool {
	switch s {
	case SortDefault, SortNewest, SortHighestPay:
		return true
	}
	return false
}

// JobFilter narrows List. Drafts selects the draft view instead of the listing.
type JobFilter struct {
	OwnerID  string
	Status   JobStatus
	Query    string // title, description or tag
	Location string // case-insensitive exact match
	PayUnit  PayUnit
	Drafts   bool
	Sort     JobSort
}

// ApplicantFilter narrows ListByJob.
type ApplicantFilter struct {
	Status ApplicantStatus
	Query  string
}

// ApplicantList is a filtered page of applicants plus counts over the whole job.
type ApplicantList struct {
	Items  []Applicant             `json:"items"`
	Counts map[ApplicantStatus]int `json:"counts"`
}
