package usecase

import (
	"context"
	"sync"

	"voxjob/internal/domain"
)

// Handle tracks one submitted job until its single resolution.
type Handle struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once
	job  domain.Job
	err  error
}

func newHandle(jobID string, cancel context.CancelFunc) *Handle {
	return &Handle{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// JobID returns the id of the tracked job.
func (h *Handle) JobID() string {
	return h.jobID
}

// Done is closed once the job has resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel aborts submission or polling. It is a no-op after resolution.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the job resolves or ctx ends. A nil error means the
// returned job is complete.
func (h *Handle) Wait(ctx context.Context) (domain.Job, error) {
	select {
	case <-h.done:
		return h.job, h.err
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	}
}

func (h *Handle) resolve(job domain.Job, err error) bool {
	resolved := false
	h.once.Do(func() {
		h.job = job
		h.err = err
		resolved = true
		close(h.done)
	})
	return resolved
}
