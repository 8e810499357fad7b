// internal/api/job/store.go
package job

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/prism/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Done reports whether the job reached a terminal status.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job represents an async job.
type Job struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Status    Status      `json:"status"`
	Progress  int         `json:"progress"`
	Result    any         `json:"result,omitempty"`
	Error     *core.Error `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store keeps jobs in memory. Finished jobs expire after ttl; when full the
// oldest job is evicted.
type Store struct {
	jobs    map[string]*Job
	order   []string // insertion order for eviction
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create creates a new job and returns a copy of it.
func (s *Store) Create(jobType string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	now := s.now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if len(s.jobs) >= s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		delete(s.jobs, oldest)
		s.order = s.order[1:]
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	return *job
}

// expireLocked drops finished jobs older than ttl. Caller holds s.mu.
func (s *Store) expireLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	kept := s.order[:0]
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status.Done() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Get retrieves a job by ID.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, core.Errorf(core.ErrJobNotFound, "no job %q", id)
	}
	if s.ttl > 0 && job.Status.Done() && job.UpdatedAt.Before(s.now().Add(-s.ttl)) {
		return Job{}, core.Errorf(core.ErrJobNotFound, "job %q expired", id)
	}
	return *job, nil
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return core.Errorf(core.ErrJobNotFound, "no job %q", id)
	}

	fn(job)
	job.UpdatedAt = s.now()
	return nil
}

// Counts returns the number of held jobs per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[Status]int{
		StatusPending:  0,
		StatusRunning:  0,
		StatusComplete: 0,
		StatusFailed:   0,
	}
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// List returns all jobs, oldest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, *s.jobs[id])
	}
	return result
}
