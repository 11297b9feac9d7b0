package matchhub

import (
	"time"

	"github.com/sudo-init-do/skygig/internal/marketplace"
)

type Stage string

const (
	StageMatching   Stage = "matching"
	StageInProgress Stage = "in_progress"
	StageCompleted  Stage = "completed"
	// StageInactive covers rejected and withdrawn applications.
	StageInactive Stage = "inactive"
)

// DeriveStage is the only way a stage is ever produced.
func DeriveStage(status marketplace.ApplicantStatus, completed bool) Stage {
	switch status {
	case marketplace.ApplicantPending:
		return StageMatching
	case marketplace.ApplicantApproved:
		if completed {
			return StageCompleted
		}
		return StageInProgress
	default:
		return StageInactive
	}
}

type PaymentStatus string

const (
	PaymentNone    PaymentStatus = "none"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

func (p PaymentStatus) valid() bool {
	return p == PaymentNone || p == PaymentPartial || p == PaymentPaid
}

type RiskFlag string

const (
	RiskOverdue        RiskFlag = "overdue"
	RiskAwaitingClient RiskFlag = "awaiting_client"
	RiskBlocked        RiskFlag = "blocked"
)

type Milestone struct {
	Name string    `json:"name"`
	Due  time.Time `json:"due"`
}

// InProgressInfo tracks delivery of approved work. RiskFlags as returned
// always include the derived overdue flag when it applies.
type InProgressInfo struct {
	ProgressPct   int           `json:"progress_pct"`
	NextMilestone *Milestone    `json:"next_milestone,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	RiskFlags     []RiskFlag    `json:"risk_flags"`
	StartedAt     time.Time     `json:"started_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Overdue reports whether the next milestone has slipped.
func (i InProgressInfo) Overdue(now time.Time) bool {
	return i.NextMilestone != nil && i.NextMilestone.Due.Before(now) && i.ProgressPct < 100
}

// ProgressInput updates InProgressInfo. Nil fields are left unchanged; a
// non-nil RiskFlags replaces the settable flags.
type ProgressInput struct {
	JobID         string         `json:"-"`
	CandidateID   string         `json:"candidate_id"`
	Actor         string         `json:"-"`
	ProgressPct   *int           `json:"progress_pct"`
	NextMilestone *Milestone     `json:"next_milestone"`
	PaymentStatus *PaymentStatus `json:"payment_status"`
	RiskFlags     []RiskFlag     `json:"risk_flags"`
}

// Item is one application as the seeker hub shows it.
type Item struct {
	ApplicantID string                `json:"applicant_id"`
	JobID       string                `json:"job_id"`
	JobTitle    string                `json:"job_title"`
	JobStatus   marketplace.JobStatus `json:"job_status"`
	CandidateID string                `json:"candidate_id"`
	PosterID    string                `json:"poster_id"`
	Stage       Stage                 `json:"stage"`
	AppliedAt   time.Time             `json:"applied_at"`
	DecidedAt   *time.Time            `json:"decided_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Progress    *InProgressInfo       `json:"progress,omitempty"`
}

// Overview groups a seeker's applications by stage.
type Overview struct {
	Counts     map[Stage]int `json:"counts"`
	Matching   []Item        `json:"matching"`
	InProgress []Item        `json:"in_progress"`
	Completed  []Item        `json:"completed"`
}
