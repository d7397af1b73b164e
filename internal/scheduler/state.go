package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// JobInfo describes an active polling job.
type JobInfo struct {
	PlaylistID  string
	Interval    time.Duration
	TitleFilter string
}

type job struct {
	JobInfo
	cancel context.CancelFunc
}

// State owns the set of active polling jobs, at most one per playlist.
type State struct {
	mu   sync.Mutex
	jobs map[string]*job
}

// NewState returns an empty job set.
func NewState() *State {
	return &State{jobs: make(map[string]*job)}
}

// replace installs j, cancelling any job previously registered for the same
// playlist. It reports whether a job was replaced.
func (s *State) replace(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.jobs[j.PlaylistID]
	if ok {
		old.cancel()
	}
	s.jobs[j.PlaylistID] = j
	return ok
}

func (s *State) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	j.cancel()
	delete(s.jobs, id)
	return true
}

func (s *State) removeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		j.cancel()
		delete(s.jobs, id)
	}
}

// Has reports whether a job is registered for the playlist.
func (s *State) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Jobs returns the active jobs ordered by playlist ID.
func (s *State) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.JobInfo)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].PlaylistID < out[b].PlaylistID })
	return out
}
