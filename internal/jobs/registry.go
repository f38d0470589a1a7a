package jobs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"voxjob/internal/domain"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrJobTerminal is returned when a terminal job is asked to transition again.
var ErrJobTerminal = errors.New("job already resolved")

// ErrJobNotPending is returned when starting a job that is not pending.
var ErrJobNotPending = errors.New("job is not pending")

// ErrJobBusy is returned when removing a job that is still processing.
var ErrJobBusy = errors.New("job is processing")

// Registry holds every job created during the session.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewRegistry creates an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// Create validates the provider and stores a new pending job owning a copy of audio.
func (r *Registry) Create(provider string, audio []byte, format string) (domain.Job, error) {
	p, err := domain.ParseProvider(provider)
	if err != nil {
		return domain.Job{}, err
	}
	if format == "" {
		format = "webm"
	}

	id := uuid.NewString()
	job := &domain.Job{
		ID:          id,
		Name:        "Recording " + id[:8],
		Status:      domain.JobStatusPending,
		Provider:    p,
		Audio:       append([]byte(nil), audio...),
		AudioFormat: format,
		AudioSize:   len(audio),
		Category:    domain.DefaultCategory,
		CreatedAt:   r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id] = job
	return *job, nil
}

// Get returns a snapshot of one job.
func (r *Registry) Get(id string) (domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return *job, nil
}

// List returns snapshots of every job in creation order.
func (r *Registry) List() []domain.Job {
	r.mu.RLock()
	out := lo.Map(lo.Values(r.jobs), func(job *domain.Job, _ int) domain.Job {
		return *job
	})
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Remove deletes a job that is not currently processing.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status == domain.JobStatusProcessing {
		return ErrJobBusy
	}
	delete(r.jobs, id)
	return nil
}

// MarkProcessing records the caller's intent to start: pending -> processing at 0%.
func (r *Registry) MarkProcessing(id string) (domain.Job, error) {
	return r.mutate(id, func(job *domain.Job) error {
		if job.Status != domain.JobStatusPending {
			if job.Status.Terminal() {
				return fmt.Errorf("%w: %s", ErrJobTerminal, job.Status)
			}
			return fmt.Errorf("%w: %s", ErrJobNotPending, job.Status)
		}
		job.Status = domain.JobStatusProcessing
		job.Progress = 0
		return nil
	})
}

// UpdateProgress raises progress on a processing job. Lower values are ignored and
// 100 is reserved for completion.
func (r *Registry) UpdateProgress(id string, progress int) (domain.Job, error) {
	return r.mutate(id, func(job *domain.Job) error {
		if err := transition(job, domain.JobStatusProcessing); err != nil {
			return err
		}
		progress = clamp(progress, 0, 99)
		if progress > job.Progress {
			job.Progress = progress
		}
		return nil
	})
}

// Complete stores the final transcript and pins progress to 100. An empty
// category keeps the current one.
func (r *Registry) Complete(id string, transcript string, category string) (domain.Job, error) {
	return r.mutate(id, func(job *domain.Job) error {
		if err := transition(job, domain.JobStatusComplete); err != nil {
			return err
		}
		job.Transcript = transcript
		if category = strings.TrimSpace(category); category != "" {
			job.Category = category
		}
		job.Progress = 100
		return nil
	})
}

// Fail moves the job to error, keeping the last reported progress.
func (r *Registry) Fail(id string, reason string) (domain.Job, error) {
	return r.mutate(id, func(job *domain.Job) error {
		if err := transition(job, domain.JobStatusError); err != nil {
			return err
		}
		job.FailureReason = reason
		return nil
	})
}

func (r *Registry) mutate(id string, fn func(job *domain.Job) error) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err := fn(job); err != nil {
		return *job, err
	}
	return *job, nil
}

func transition(job *domain.Job, to domain.JobStatus) error {
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrJobTerminal, job.Status)
	}
	if !isValidTransition(job.Status, to) {
		return fmt.Errorf("invalid transition: %s -> %s", job.Status, to)
	}
	job.Status = to
	return nil
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusPending:
		return to == domain.JobStatusProcessing || to == domain.JobStatusError
	case domain.JobStatusProcessing:
		return to == domain.JobStatusProcessing || to == domain.JobStatusComplete || to == domain.JobStatusError
	default:
		return false
	}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
