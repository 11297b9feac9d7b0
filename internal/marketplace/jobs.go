package marketplace

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sudo-init-do/skygig/internal/apperr"
	"github.com/sudo-init-do/skygig/internal/clock"
	"github.com/sudo-init-do/skygig/internal/events"
)

const (
	minTitleLen         = 5
	maxTitleLen         = 100
	minDescriptionWords = 50
)

type jobRow struct {
	mu      sync.Mutex
	job     JobPosting // Status holds the stored status
	deleted bool
}

// JobStore owns job postings and their lifecycle.
type JobStore struct {
	clock   clock.Clock
	ids     clock.IDGen
	bus     events.Publisher
	horizon time.Duration

	mu   sync.RWMutex
	rows map[string]*jobRow

	// pending applicant count per job, fed by application:* events
	pendingMu sync.Mutex
	pending   map[string]int

	// bookmarks: user id -> job id -> saved at
	savedMu sync.Mutex
	saved   map[string]map[string]time.Time
}

func NewJobStore(c clock.Clock, ids clock.IDGen, bus events.Publisher, closingSoonHorizon time.Duration) *JobStore {
	return &JobStore{
		clock:   c,
		ids:     ids,
		bus:     bus,
		horizon: closingSoonHorizon,
		rows:    make(map[string]*jobRow),
		pending: make(map[string]int),
		saved:   make(map[string]map[string]time.Time),
	}
}

// ComputeStatus derives the reported status of a job at now.
// Explicit close and expiry both yield closed; an open job whose expiry is
// within horizon is closingSoon.
func ComputeStatus(job JobPosting, now time.Time, horizon time.Duration) JobStatus {
	switch job.Status {
	case JobDraft:
		return JobDraft
	case JobClosed:
		return JobClosed
	}
	if now.After(job.ExpiredAt) {
		return JobClosed
	}
	if !job.ExpiredAt.After(now.Add(horizon)) {
		return JobClosingSoon
	}
	return JobOpen
}

// ValidateJob enforces the posting policy on title, description and expiry.
func ValidateJob(title, description string, expiredAt, now time.Time) error {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n < minTitleLen || n > maxTitleLen {
		return fmt.Errorf("%w: title must be %d-%d characters", apperr.ErrValidation, minTitleLen, maxTitleLen)
	}
	if n := len(strings.Fields(description)); n < minDescriptionWords {
		return fmt.Errorf("%w: description needs at least %d words, got %d", apperr.ErrValidation, minDescriptionWords, n)
	}
	if !expiredAt.After(now) {
		return fmt.Errorf("%w: expired_at must be in the future", apperr.ErrValidation)
	}
	return nil
}

// view returns a copy of j with its status computed at the current time.
func (s *JobStore) view(j JobPosting) JobPosting {
	j.Status = ComputeStatus(j, s.clock.Now(), s.horizon)
	j.Tags = append([]string{}, j.Tags...)
	if j.Pay != nil {
		p := *j.Pay
		j.Pay = &p
	}
	return j
}

func (s *JobStore) row(id string) (*jobRow, error) {
	s.mu.RLock()
	r, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s", apperr.ErrNotFound, id)
	}
	return r, nil
}

// lockOwned locks the row of a live job owned by actor. Callers must unlock.
func (s *JobStore) lockOwned(id, actor string) (*jobRow, error) {
	r, err := s.row(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s", apperr.ErrNotFound, id)
	}
	if r.job.OwnerID != actor {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s belongs to another poster", apperr.ErrForbidden, id)
	}
	return r, nil
}

func (s *JobStore) publish(ctx context.Context, typ string, j JobPosting) {
	s.bus.Publish(ctx, events.Event{
		Type:        typ,
		AggregateID: j.ID,
		OccurredAt:  s.clock.Now(),
		Payload: events.JobPayload{
			JobID:     j.ID,
			OwnerID:   j.OwnerID,
			Title:     j.Title,
			Status:    string(j.Status),
			PostedAt:  j.PostedAt,
			ExpiredAt: j.ExpiredAt,
		},
	})
}

// Create stores a new posting as draft, or open when in.Publish is set.
func (s *JobStore) Create(ctx context.Context, in CreateJobInput) (JobPosting, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return JobPosting{}, fmt.Errorf("%w: owner is required", apperr.ErrValidation)
	}
	now := s.clock.Now()
	if err := ValidateJob(in.Title, in.Description, in.ExpiredAt, now); err != nil {
		return JobPosting{}, err
	}

	status := JobDraft
	if in.Publish {
		status = JobOpen
	}
	r := &jobRow{job: JobPosting{
		ID:          s.ids.NewID(),
		OwnerID:     in.OwnerID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		PostedAt:    now,
		UpdatedAt:   now,
		ExpiredAt:   in.ExpiredAt.UTC(),
		Status:      status,
	}}
	if err := applyDetails(&r.job, in.Location, in.Pay, in.Tags); err != nil {
		return JobPosting{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s.mu.Lock()
	s.rows[r.job.ID] = r
	s.mu.Unlock()

	s.publish(ctx, events.JobCreated, r.job)
	if in.Publish {
		s.publish(ctx, events.JobPublished, r.job)
	}
	return s.view(r.job), nil
}

// Publish moves a draft to open.
func (s *JobStore) Publish(ctx context.Context, id, actor string) (JobPosting, error) {
	r, err := s.lockOwned(id, actor)
	if err != nil {
		return JobPosting{}, err
	}
	defer r.mu.Unlock()

	if r.job.Status != JobDraft {
		return JobPosting{}, fmt.Errorf("%w: job %s is %s, not draft", apperr.ErrInvalidTransition, id, s.view(r.job).Status)
	}
	if !r.job.ExpiredAt.After(s.clock.Now()) {
		return JobPosting{}, fmt.Errorf("%w: job %s already expired", apperr.ErrValidation, id)
	}
	r.job.Status = JobOpen
	s.publish(ctx, events.JobPublished, r.job)
	return s.view(r.job), nil
}

// Update edits a draft, open or closing-soon job. The patched job must pass
// the same checks as Create; a closed job cannot be edited.
func (s *JobStore) Update(ctx context.Context, in UpdateJobInput) (JobPosting, error) {
	r, err := s.lockOwned(in.JobID, in.Actor)
	if err != nil {
		return JobPosting{}, err
	}
	defer r.mu.Unlock()

	now := s.clock.Now()
	if ComputeStatus(r.job, now, s.horizon) == JobClosed {
		return JobPosting{}, fmt.Errorf("%w: job %s is closed", apperr.ErrInvalidState, in.JobID)
	}

	next := r.job
	if in.Title != nil {
		next.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.ExpiredAt != nil {
		next.ExpiredAt = in.ExpiredAt.UTC()
	}
	if err := ValidateJob(next.Title, next.Description, next.ExpiredAt, now); err != nil {
		return JobPosting{}, err
	}

	location, pay, tags := next.Location, next.Pay, next.Tags
	if in.Location != nil {
		location = *in.Location
	}
	if in.Pay != nil {
		pay = in.Pay
	}
	if in.Tags != nil {
		tags = *in.Tags
	}
	if err := applyDetails(&next, location, pay, tags); err != nil {
		return JobPosting{}, err
	}

	next.UpdatedAt = now
	r.job = next
	s.publish(ctx, events.JobUpdated, r.job)
	return s.view(r.job), nil
}

// Close closes an open or closing-soon job. Closing a closed job is a no-op.
func (s *JobStore) Close(ctx context.Context, id, actor string) (JobPosting, error) {
	r, err := s.lockOwned(id, actor)
	if err != nil {
		return JobPosting{}, err
	}
	defer r.mu.Unlock()

	switch ComputeStatus(r.job, s.clock.Now(), s.horizon) {
	case JobDraft:
		return JobPosting{}, fmt.Errorf("%w: draft job %s cannot be closed", apperr.ErrInvalidTransition, id)
	case JobClosed:
		if r.job.Status == JobClosed {
			return s.view(r.job), nil
		}
		// expired but never explicitly closed: record it without an event
		r.job.Status = JobClosed
		return s.view(r.job), nil
	}
	r.job.Status = JobClosed
	s.publish(ctx, events.JobClosed, r.job)
	return s.view(r.job), nil
}

// Delete removes a job that has no pending applicants.
func (s *JobStore) Delete(ctx context.Context, id, actor string) error {
	r, err := s.lockOwned(id, actor)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	if n := s.PendingApplicants(id); n > 0 {
		return fmt.Errorf("%w: job %s has %d pending applicants", apperr.ErrConflict, id, n)
	}
	r.deleted = true
	s.mu.Lock()
	delete(s.rows, id)
	s.mu.Unlock()

	s.publish(ctx, events.JobDeleted, r.job)
	return nil
}

// Get returns the job with its status computed at the current time.
func (s *JobStore) Get(_ context.Context, id string) (JobPosting, error) {
	r, err := s.row(id)
	if err != nil {
		return JobPosting{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return JobPosting{}, fmt.Errorf("%w: job %s", apperr.ErrNotFound, id)
	}
	return s.view(r.job), nil
}

// WithJob runs fn on the live job while holding its row, so Update, Close
// and Delete on that job wait until fn returns.
func (s *JobStore) WithJob(_ context.Context, id string, fn func(JobPosting) error) error {
	r, err := s.row(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return fmt.Errorf("%w: job %s", apperr.ErrNotFound, id)
	}
	return fn(s.view(r.job))
}

// List returns jobs matching f. The default order puts open and closing-soon
// jobs first, soonest expiry first, then closed jobs newest first.
func (s *JobStore) List(_ context.Context, f JobFilter) []JobPosting {
	s.mu.RLock()
	rows := make([]*jobRow, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	location := strings.TrimSpace(f.Location)
	out := make([]JobPosting, 0, len(rows))
	for _, r := range rows {
		r.mu.Lock()
		j, deleted := s.view(r.job), r.deleted
		r.mu.Unlock()

		switch {
		case deleted:
			continue
		case f.OwnerID != "" && j.OwnerID != f.OwnerID:
			continue
		case f.Drafts != (j.Status == JobDraft):
			continue
		case f.Status != "" && j.Status != f.Status:
			continue
		case location != "" && !strings.EqualFold(j.Location, location):
			continue
		case f.PayUnit != "" && (j.Pay == nil || j.Pay.Unit != f.PayUnit):
			continue
		case q != "" && !matchesQuery(j, q):
			continue
		}
		out = append(out, j)
	}

	sort.SliceStable(out, jobLess(out, f.Sort))
	return out
}

func matchesQuery(j JobPosting, q string) bool {
	if strings.Contains(strings.ToLower(j.Title+" "+j.Description), q) {
		return true
	}
	for _, t := range j.Tags {
		if strings.Contains(t, q) {
			return true
		}
	}
	return false
}

func jobLess(out []JobPosting, by JobSort) func(a, b int) bool {
	switch by {
	case SortNewest:
		return func(a, b int) bool { return out[a].PostedAt.After(out[b].PostedAt) }
	case SortHighestPay:
		// unpaid listings last, ties newest first
		return func(a, b int) bool {
			pa, pb := out[a].Pay, out[b].Pay
			switch {
			case pa == nil && pb == nil:
				return out[a].PostedAt.After(out[b].PostedAt)
			case pa == nil:
				return false
			case pb == nil:
				return true
			case pa.Amount != pb.Amount:
				return pa.Amount > pb.Amount
			}
			return out[a].PostedAt.After(out[b].PostedAt)
		}
	}
	return func(a, b int) bool {
		ja, jb := out[a], out[b]
		la, lb := ja.Status.Accepting(), jb.Status.Accepting()
		if la != lb {
			return la
		}
		if la {
			return ja.ExpiredAt.Before(jb.ExpiredAt)
		}
		return ja.PostedAt.After(jb.PostedAt)
	}
}

// PendingApplicants reports how many applications on the job await a decision.
func (s *JobStore) PendingApplicants(jobID string) int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.pending[jobID]
}

// HandleApplicationEvent keeps the pending-applicant counts current. It is
// registered as a sync subscriber so Delete never sees a stale count.
func (s *JobStore) HandleApplicationEvent(_ context.Context, ev events.Event) {
	p, ok := ev.Payload.(events.ApplicationPayload)
	if !ok {
		return
	}
	s.pendingMu.Lock()
	switch ev.Type {
	case events.ApplicationSubmitted:
		s.pending[p.JobID]++
	case events.ApplicationDecided, events.ApplicationWithdrawn:
		if s.pending[p.JobID] > 0 {
			s.pending[p.JobID]--
		}
		if s.pending[p.JobID] == 0 {
			delete(s.pending, p.JobID)
		}
	}
	s.pendingMu.Unlock()

	if ev.Type == events.ApplicationSubmitted && !s.exists(p.JobID) {
		log.Printf("[marketplace] application %s arrived for deleted job %s", p.ApplicantID, p.JobID)
	}
}

func (s *JobStore) exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[id]
	return ok
}

// CountByStatus counts live jobs by reported status.
func (s *JobStore) CountByStatus(_ context.Context) map[JobStatus]int {
	s.mu.RLock()
	rows := make([]*jobRow, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	s.mu.RUnlock()

	counts := map[JobStatus]int{JobDraft: 0, JobOpen: 0, JobClosingSoon: 0, JobClosed: 0}
	for _, r := range rows {
		r.mu.Lock()
		if !r.deleted {
			counts[s.view(r.job).Status]++
		}
		r.mu.Unlock()
	}
	return counts
}
