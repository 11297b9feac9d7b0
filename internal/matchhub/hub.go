package matchhub

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sudo-init-do/skygig/internal/apperr"
	"github.com/sudo-init-do/skygig/internal/clock"
	"github.com/sudo-init-do/skygig/internal/events"
	"github.com/sudo-init-do/skygig/internal/marketplace"
)

type key struct {
	candidateID string
	jobID       string
}

type jobView struct {
	ownerID   string
	title     string
	status    marketplace.JobStatus // stored status
	expiredAt time.Time
	deleted   bool
}

// record is the hub's copy of one application plus the fields the hub owns.
type record struct {
	mu sync.Mutex

	applicantID string
	jobID       string
	candidateID string
	posterID    string
	status      marketplace.ApplicantStatus
	appliedAt   time.Time
	decidedAt   *time.Time

	completed   bool
	completedAt *time.Time
	info        InProgressInfo // RiskFlags never contains RiskOverdue here
}

func (r *record) stage() Stage {
	return DeriveStage(r.status, r.completed)
}

// Hub projects job and application events into per-seeker stages and owns
// progress tracking for approved work.
type Hub struct {
	clock   clock.Clock
	bus     events.Publisher
	horizon time.Duration

	// mu guards the maps. It may be held while taking a record lock.
	mu      sync.RWMutex
	records map[key]*record
	jobs    map[string]*jobView
}

func New(c clock.Clock, bus events.Publisher, closingSoonHorizon time.Duration) *Hub {
	return &Hub{
		clock:   c,
		bus:     bus,
		horizon: closingSoonHorizon,
		records: make(map[key]*record),
		jobs:    make(map[string]*jobView),
	}
}

// Subscribe registers the hub as a synchronous subscriber, so a stage is
// current as soon as the publishing call returns.
func (h *Hub) Subscribe(b *events.Bus) {
	b.SubscribeSync("matchhub", h.HandleEvent,
		events.JobCreated, events.JobPublished, events.JobUpdated, events.JobClosed, events.JobDeleted,
		events.ApplicationSubmitted, events.ApplicationDecided, events.ApplicationWithdrawn)
}

// HandleEvent applies one committed event to the projection.
func (h *Hub) HandleEvent(_ context.Context, ev events.Event) {
	switch p := ev.Payload.(type) {
	case events.JobPayload:
		h.applyJob(ev.Type, p)
	case events.ApplicationPayload:
		h.applyApplication(ev, p)
	}
}

func (h *Hub) applyJob(typ string, p events.JobPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[p.JobID]
	if !ok {
		j = &jobView{}
		h.jobs[p.JobID] = j
	}
	j.ownerID = p.OwnerID
	j.title = p.Title
	j.status = marketplace.JobStatus(p.Status)
	j.expiredAt = p.ExpiredAt
	if typ == events.JobDeleted {
		j.deleted = true
	}
}

func (h *Hub) applyApplication(ev events.Event, p events.ApplicationPayload) {
	k := key{candidateID: p.CandidateID, jobID: p.JobID}
	status := marketplace.ApplicantStatus(p.Status)

	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Type == events.ApplicationSubmitted {
		h.records[k] = &record{
			applicantID: p.ApplicantID,
			jobID:       p.JobID,
			candidateID: p.CandidateID,
			posterID:    p.PosterID,
			status:      status,
			appliedAt:   p.AppliedAt,
		}
		return
	}

	r, ok := h.records[k]
	if !ok || r.applicantID != p.ApplicantID {
		log.Printf("[matchhub] %s for unknown applicant %s", ev.Type, p.ApplicantID)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	at := ev.OccurredAt
	r.status = status
	r.decidedAt = &at
	if status == marketplace.ApplicantApproved {
		r.info = InProgressInfo{
			PaymentStatus: PaymentNone,
			StartedAt:     at,
			UpdatedAt:     at,
		}
	}
}

func (h *Hub) record(candidateID, jobID string) (*record, error) {
	h.mu.RLock()
	r, ok := h.records[key{candidateID: candidateID, jobID: jobID}]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no application by %s for job %s", apperr.ErrNotFound, candidateID, jobID)
	}
	return r, nil
}

// StageFor derives the seeker's stage for a job from committed state.
func (h *Hub) StageFor(candidateID, jobID string) (Stage, error) {
	r, err := h.record(candidateID, jobID)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage(), nil
}

// Item returns the hub entry for one (candidate, job) pair. Only the
// candidate and the poster may see it.
func (h *Hub) Item(candidateID, jobID, actor string) (Item, error) {
	r, err := h.record(candidateID, jobID)
	if err != nil {
		return Item{}, err
	}
	r.mu.Lock()
	posterID := r.posterID
	r.mu.Unlock()
	if actor != candidateID && actor != posterID {
		return Item{}, fmt.Errorf("%w: not a party to this application", apperr.ErrForbidden)
	}
	return h.item(r), nil
}

func (h *Hub) item(r *record) Item {
	h.mu.RLock()
	var j jobView
	if v, ok := h.jobs[r.jobID]; ok {
		j = *v
	}
	h.mu.RUnlock()

	now := h.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	it := Item{
		ApplicantID: r.applicantID,
		JobID:       r.jobID,
		JobTitle:    j.title,
		CandidateID: r.candidateID,
		PosterID:    r.posterID,
		Stage:       r.stage(),
		AppliedAt:   r.appliedAt,
		DecidedAt:   r.decidedAt,
		CompletedAt: r.completedAt,
	}
	if j.status != "" && !j.deleted {
		it.JobStatus = marketplace.ComputeStatus(marketplace.JobPosting{Status: j.status, ExpiredAt: j.expiredAt}, now, h.horizon)
	}
	if it.Stage == StageInProgress || it.Stage == StageCompleted {
		info := h.derive(r.info, now)
		it.Progress = &info
	}
	return it
}

// derive returns info with the overdue flag computed at now.
func (h *Hub) derive(info InProgressInfo, now time.Time) InProgressInfo {
	flags := make([]RiskFlag, 0, len(info.RiskFlags)+1)
	if info.Overdue(now) {
		flags = append(flags, RiskOverdue)
	}
	info.RiskFlags = append(flags, info.RiskFlags...)
	if info.NextMilestone != nil {
		m := *info.NextMilestone
		info.NextMilestone = &m
	}
	return info
}

func (h *Hub) publishStage(ctx context.Context, typ string, r *record, actor string) {
	h.bus.Publish(ctx, events.Event{
		Type:        typ,
		AggregateID: r.applicantID,
		OccurredAt:  h.clock.Now(),
		Payload: events.StagePayload{
			JobID:       r.jobID,
			CandidateID: r.candidateID,
			PosterID:    r.posterID,
			ActorID:     actor,
			ProgressPct: r.info.ProgressPct,
		},
	})
}

func (h *Hub) lockParty(candidateID, jobID, actor string) (*record, error) {
	r, err := h.record(candidateID, jobID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if actor != r.candidateID && actor != r.posterID {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: not a party to this application", apperr.ErrForbidden)
	}
	return r, nil
}

// MarkComplete records completion of in-progress work. Either party may call
// it; repeating it once completed is a no-op.
func (h *Hub) MarkComplete(ctx context.Context, jobID, candidateID, actor string) (Stage, error) {
	r, err := h.lockParty(candidateID, jobID, actor)
	if err != nil {
		return "", err
	}
	defer r.mu.Unlock()

	switch st := r.stage(); st {
	case StageCompleted:
		return st, nil
	case StageInProgress:
	default:
		return "", fmt.Errorf("%w: stage is %s, not %s", apperr.ErrInvalidTransition, st, StageInProgress)
	}

	now := h.clock.Now()
	r.completed = true
	r.completedAt = &now
	r.info.UpdatedAt = now
	h.publishStage(ctx, events.StageCompleted, r, actor)
	return r.stage(), nil
}

// UpdateProgress edits the in-progress fields. The stage itself never moves.
func (h *Hub) UpdateProgress(ctx context.Context, in ProgressInput) (InProgressInfo, error) {
	if in.PaymentStatus != nil && !in.PaymentStatus.valid() {
		return InProgressInfo{}, fmt.Errorf("%w: unknown payment status %q", apperr.ErrValidation, *in.PaymentStatus)
	}
	var flags []RiskFlag
	if in.RiskFlags != nil {
		seen := make(map[RiskFlag]bool)
		flags = make([]RiskFlag, 0, len(in.RiskFlags))
		for _, f := range in.RiskFlags {
			switch f {
			case RiskOverdue:
				return InProgressInfo{}, fmt.Errorf("%w: %s is derived and cannot be set", apperr.ErrValidation, RiskOverdue)
			case RiskAwaitingClient, RiskBlocked:
			default:
				return InProgressInfo{}, fmt.Errorf("%w: unknown risk flag %q", apperr.ErrValidation, f)
			}
			if !seen[f] {
				seen[f] = true
				flags = append(flags, f)
			}
		}
	}
	if in.NextMilestone != nil && in.NextMilestone.Name == "" {
		return InProgressInfo{}, fmt.Errorf("%w: milestone name is required", apperr.ErrValidation)
	}

	r, err := h.lockParty(in.CandidateID, in.JobID, in.Actor)
	if err != nil {
		return InProgressInfo{}, err
	}
	defer r.mu.Unlock()

	if st := r.stage(); st != StageInProgress {
		return InProgressInfo{}, fmt.Errorf("%w: stage is %s, not %s", apperr.ErrInvalidState, st, StageInProgress)
	}

	if in.ProgressPct != nil {
		r.info.ProgressPct = clamp(*in.ProgressPct, 0, 100)
	}
	if in.NextMilestone != nil {
		m := *in.NextMilestone
		m.Due = m.Due.UTC()
		r.info.NextMilestone = &m
	}
	if in.PaymentStatus != nil {
		r.info.PaymentStatus = *in.PaymentStatus
	}
	if flags != nil {
		r.info.RiskFlags = flags
	}
	now := h.clock.Now()
	r.info.UpdatedAt = now

	h.publishStage(ctx, events.StageProgressUpdated, r, in.Actor)
	return h.derive(r.info, now), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Progress returns the in-progress info with risk flags derived at now.
func (h *Hub) Progress(candidateID, jobID string) (InProgressInfo, error) {
	r, err := h.record(candidateID, jobID)
	if err != nil {
		return InProgressInfo{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if st := r.stage(); st != StageInProgress && st != StageCompleted {
		return InProgressInfo{}, fmt.Errorf("%w: stage is %s", apperr.ErrInvalidState, st)
	}
	return h.derive(r.info, h.clock.Now()), nil
}

// Overview lists a seeker's applications grouped by stage. Matching is
// newest first, in-progress by next milestone due (undated last), completed
// by most recent completion.
func (h *Hub) Overview(candidateID string) Overview {
	h.mu.RLock()
	rows := make([]*record, 0)
	for k, r := range h.records {
		if k.candidateID == candidateID {
			rows = append(rows, r)
		}
	}
	h.mu.RUnlock()

	ov := Overview{
		Counts: map[Stage]int{
			StageMatching:   0,
			StageInProgress: 0,
			StageCompleted:  0,
			StageInactive:   0,
		},
		Matching:   []Item{},
		InProgress: []Item{},
		Completed:  []Item{},
	}
	for _, r := range rows {
		it := h.item(r)
		ov.Counts[it.Stage]++
		switch it.Stage {
		case StageMatching:
			ov.Matching = append(ov.Matching, it)
		case StageInProgress:
			ov.InProgress = append(ov.InProgress, it)
		case StageCompleted:
			ov.Completed = append(ov.Completed, it)
		}
	}

	sort.SliceStable(ov.Matching, func(i, j int) bool {
		return ov.Matching[i].AppliedAt.After(ov.Matching[j].AppliedAt)
	})
	sort.SliceStable(ov.InProgress, func(i, j int) bool {
		a, b := ov.InProgress[i].Progress.NextMilestone, ov.InProgress[j].Progress.NextMilestone
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Due.Before(b.Due)
	})
	sort.SliceStable(ov.Completed, func(i, j int) bool {
		return ov.Completed[i].CompletedAt.After(*ov.Completed[j].CompletedAt)
	})
	return ov
}
