package marketplace

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sudo-init-do/skygig/internal/apperr"
)

// ToggleSaved bookmarks jobID for userID, or removes the bookmark if it is
// already there. It reports whether the job is saved afterwards. Only listed
// jobs can be saved; a bookmark on a job that has since gone can still be
// removed.
func (s *JobStore) ToggleSaved(ctx context.Context, jobID, userID string) (bool, error) {
	s.savedMu.Lock()
	_, had := s.saved[userID][jobID]
	if had {
		delete(s.saved[userID], jobID)
		if len(s.saved[userID]) == 0 {
			delete(s.saved, userID)
		}
	}
	s.savedMu.Unlock()
	if had {
		return false, nil
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status == JobDraft {
		return false, fmt.Errorf("%w: job %s", apperr.ErrNotFound, jobID)
	}

	s.savedMu.Lock()
	defer s.savedMu.Unlock()
	if s.saved[userID] == nil {
		s.saved[userID] = make(map[string]time.Time)
	}
	s.saved[userID][jobID] = s.clock.Now()
	return true, nil
}

// SavedJobs returns the jobs userID bookmarked, most recently saved first.
// Deleted jobs drop out.
func (s *JobStore) SavedJobs(ctx context.Context, userID string) []JobPosting {
	type mark struct {
		jobID string
		at    time.Time
	}
	s.savedMu.Lock()
	marks := make([]mark, 0, len(s.saved[userID]))
	for id, at := range s.saved[userID] {
		marks = append(marks, mark{id, at})
	}
	s.savedMu.Unlock()

	sort.Slice(marks, func(a, b int) bool {
		if !marks[a].at.Equal(marks[b].at) {
			return marks[a].at.After(marks[b].at)
		}
		return marks[a].jobID < marks[b].jobID
	})

	out := make([]JobPosting, 0, len(marks))
	for _, m := range marks {
		job, err := s.Get(ctx, m.jobID)
		if err != nil {
			continue
		}
		out = append(out, job)
	}
	return out
}
