package usecase

import (
	"context"
	"errors"
	"fmt"

	"voxjob/internal/domain"
	"voxjob/internal/ports"
)

// ErrTranscriptNotReady is returned when copying a job that has not completed.
var ErrTranscriptNotReady = errors.New("transcript is available only for completed jobs")

type jobReader interface {
	Get(id string) (domain.Job, error)
}

// TranscriptCopier exports completed transcripts to the clipboard.
type TranscriptCopier struct {
	jobs      jobReader
	clipboard ports.Clipboard
}

func NewTranscriptCopier(jobs jobReader, clipboard ports.Clipboard) TranscriptCopier {
	return TranscriptCopier{jobs: jobs, clipboard: clipboard}
}

// Copy writes the transcript of a completed job to the clipboard and returns it.
func (c TranscriptCopier) Copy(ctx context.Context, jobID string) (string, error) {
	job, err := c.jobs.Get(jobID)
	if err != nil {
		return "", err
	}
	if job.Status != domain.JobStatusComplete {
		return "", fmt.Errorf("%w: %s is %s", ErrTranscriptNotReady, jobID, job.Status)
	}
	if err := c.clipboard.SetText(ctx, job.Transcript); err != nil {
		return job.Transcript, fmt.Errorf("transcript ready but clipboard write failed: %w", err)
	}
	return job.Transcript, nil
}
