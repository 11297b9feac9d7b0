package marketplace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sudo-init-do/skygig/internal/apperr"
	"github.com/sudo-init-do/skygig/internal/clock"
	"github.com/sudo-init-do/skygig/internal/events"
)

// JobReader is the read-only view of job postings other components need.
type JobReader interface {
	Get(ctx context.Context, id string) (JobPosting, error)
}

// JobGate is the pipeline's view of the job store. WithJob runs fn while the
// job cannot be closed or deleted underneath it.
type JobGate interface {
	JobReader
	WithJob(ctx context.Context, id string, fn func(JobPosting) error) error
}

type applicantRow struct {
	mu sync.Mutex
	a  Applicant
}

type pairKey struct {
	jobID       string
	candidateID string
}

// Pipeline owns applications and the poster's decisions on them.
type Pipeline struct {
	clock clock.Clock
	ids   clock.IDGen
	bus   events.Publisher
	jobs  JobGate

	// mu guards the indexes below. It may be held while taking a row lock,
	// never the other way round.
	mu          sync.RWMutex
	rows        map[string]*applicantRow
	byPair      map[pairKey]*applicantRow
	byJob       map[string][]*applicantRow
	byCandidate map[string][]*applicantRow
}

func NewPipeline(c clock.Clock, ids clock.IDGen, bus events.Publisher, jobs JobGate) *Pipeline {
	return &Pipeline{
		clock:       c,
		ids:         ids,
		bus:         bus,
		jobs:        jobs,
		rows:        make(map[string]*applicantRow),
		byPair:      make(map[pairKey]*applicantRow),
		byJob:       make(map[string][]*applicantRow),
		byCandidate: make(map[string][]*applicantRow),
	}
}

func (p *Pipeline) publish(ctx context.Context, typ string, a Applicant) {
	p.bus.Publish(ctx, events.Event{
		Type:        typ,
		AggregateID: a.ID,
		OccurredAt:  p.clock.Now(),
		Payload: events.ApplicationPayload{
			ApplicantID: a.ID,
			JobID:       a.JobID,
			CandidateID: a.CandidateID,
			PosterID:    a.PosterID,
			Status:      string(a.Status),
			AppliedAt:   a.AppliedAt,
		},
	})
}

// Apply records candidateID's application to jobID. The application is
// admitted while the job is held, so a concurrent Close or Delete either
// happens first and Apply fails, or sees the new pending applicant.
func (p *Pipeline) Apply(ctx context.Context, jobID, candidateID string) (Applicant, error) {
	if strings.TrimSpace(candidateID) == "" {
		return Applicant{}, fmt.Errorf("%w: candidate is required", apperr.ErrValidation)
	}

	var out Applicant
	err := p.jobs.WithJob(ctx, jobID, func(job JobPosting) error {
		if job.OwnerID == candidateID {
			return fmt.Errorf("%w: posters cannot apply to their own job", apperr.ErrForbidden)
		}
		if !job.Status.Accepting() {
			return fmt.Errorf("%w: job %s is %s", apperr.ErrInvalidState, jobID, job.Status)
		}
		a, err := p.admit(ctx, job, candidateID)
		out = a
		return err
	})
	return out, err
}

func (p *Pipeline) admit(ctx context.Context, job JobPosting, candidateID string) (Applicant, error) {
	key := pairKey{jobID: job.ID, candidateID: candidateID}

	p.mu.Lock()
	if prev, ok := p.byPair[key]; ok {
		prev.mu.Lock()
		status := prev.a.Status
		prev.mu.Unlock()
		if status != ApplicantWithdrawn {
			p.mu.Unlock()
			return Applicant{}, fmt.Errorf("%w: candidate %s already applied to job %s", apperr.ErrConflict, candidateID, job.ID)
		}
	}

	r := &applicantRow{a: Applicant{
		ID:          p.ids.NewID(),
		JobID:       job.ID,
		CandidateID: candidateID,
		PosterID:    job.OwnerID,
		AppliedAt:   p.clock.Now(),
		Status:      ApplicantPending,
	}}
	r.mu.Lock()
	defer r.mu.Unlock()

	p.rows[r.a.ID] = r
	p.byPair[key] = r
	p.byJob[job.ID] = append(p.byJob[job.ID], r)
	p.byCandidate[candidateID] = append(p.byCandidate[candidateID], r)
	p.mu.Unlock()

	p.publish(ctx, events.ApplicationSubmitted, r.a)
	return r.a, nil
}

func (p *Pipeline) row(id string) (*applicantRow, error) {
	p.mu.RLock()
	r, ok := p.rows[id]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: applicant %s", apperr.ErrNotFound, id)
	}
	return r, nil
}

// Decide approves or rejects a pending applicant. Only the first decision
// wins; later ones fail with ErrInvalidTransition.
func (p *Pipeline) Decide(ctx context.Context, applicantID, actor string, d Decision) (Applicant, error) {
	var next ApplicantStatus
	switch d {
	case DecisionApprove:
		next = ApplicantApproved
	case DecisionReject:
		next = ApplicantRejected
	default:
		return Applicant{}, fmt.Errorf("%w: unknown decision %q", apperr.ErrValidation, d)
	}

	r, err := p.row(applicantID)
	if err != nil {
		return Applicant{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.a.PosterID != actor {
		return Applicant{}, fmt.Errorf("%w: only the job poster can decide", apperr.ErrForbidden)
	}
	if r.a.Status != ApplicantPending {
		return Applicant{}, fmt.Errorf("%w: applicant %s is already %s", apperr.ErrInvalidTransition, applicantID, r.a.Status)
	}

	now := p.clock.Now()
	r.a.Status = next
	r.a.DecidedAt = &now
	p.publish(ctx, events.ApplicationDecided, r.a)
	return r.a, nil
}

// Withdraw lets the candidate pull a pending application.
func (p *Pipeline) Withdraw(ctx context.Context, applicantID, actor string) (Applicant, error) {
	r, err := p.row(applicantID)
	if err != nil {
		return Applicant{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.a.CandidateID != actor {
		return Applicant{}, fmt.Errorf("%w: only the candidate can withdraw", apperr.ErrForbidden)
	}
	if r.a.Status != ApplicantPending {
		return Applicant{}, fmt.Errorf("%w: applicant %s is already %s", apperr.ErrInvalidTransition, applicantID, r.a.Status)
	}

	now := p.clock.Now()
	r.a.Status = ApplicantWithdrawn
	r.a.DecidedAt = &now
	p.publish(ctx, events.ApplicationWithdrawn, r.a)
	return r.a, nil
}

// Get returns one applicant. Only its candidate and poster may read it.
func (p *Pipeline) Get(_ context.Context, applicantID, actor string) (Applicant, error) {
	r, err := p.row(applicantID)
	if err != nil {
		return Applicant{}, err
	}
	r.mu.Lock()
	a := r.a
	r.mu.Unlock()
	if actor != a.CandidateID && actor != a.PosterID {
		return Applicant{}, fmt.Errorf("%w: not your application", apperr.ErrForbidden)
	}
	return a, nil
}

func snapshot(rows []*applicantRow) []Applicant {
	out := make([]Applicant, 0, len(rows))
	for _, r := range rows {
		r.mu.Lock()
		out = append(out, r.a)
		r.mu.Unlock()
	}
	return out
}

func (p *Pipeline) indexed(idx map[string][]*applicantRow, key string) []*applicantRow {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*applicantRow(nil), idx[key]...)
}

// ListByJob returns the job's applicants for its poster: pending first, then
// newest first. Counts cover every applicant of the job regardless of f.
func (p *Pipeline) ListByJob(ctx context.Context, jobID, actor string, f ApplicantFilter) (ApplicantList, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return ApplicantList{}, err
	}
	if job.OwnerID != actor {
		return ApplicantList{}, fmt.Errorf("%w: job %s belongs to another poster", apperr.ErrForbidden, jobID)
	}

	all := snapshot(p.indexed(p.byJob, jobID))
	list := ApplicantList{
		Items: make([]Applicant, 0, len(all)),
		Counts: map[ApplicantStatus]int{
			ApplicantPending:   0,
			ApplicantApproved:  0,
			ApplicantRejected:  0,
			ApplicantWithdrawn: 0,
		},
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, a := range all {
		list.Counts[a.Status]++
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(a.CandidateID), q) {
			continue
		}
		list.Items = append(list.Items, a)
	}

	sort.SliceStable(list.Items, func(i, j int) bool {
		a, b := list.Items[i], list.Items[j]
		pa, pb := a.Status == ApplicantPending, b.Status == ApplicantPending
		if pa != pb {
			return pa
		}
		return a.AppliedAt.After(b.AppliedAt)
	})
	return list, nil
}

// ListByCandidate returns every application the candidate made, newest first.
func (p *Pipeline) ListByCandidate(_ context.Context, candidateID string) []Applicant {
	out := snapshot(p.indexed(p.byCandidate, candidateID))
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out
}

// PendingCount counts pending applications on a job.
func (p *Pipeline) PendingCount(jobID string) int {
	n := 0
	for _, a := range snapshot(p.indexed(p.byJob, jobID)) {
		if a.Status == ApplicantPending {
			n++
		}
	}
	return n
}
