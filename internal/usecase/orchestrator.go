package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"voxjob/internal/domain"
	"voxjob/internal/ports"
)

var (
	ErrJobNotProcessing = errors.New("job must be marked processing before submit")
	ErrLoopActive       = errors.New("job already has an active poll loop")
	ErrNoActiveLoop     = errors.New("job has no active poll loop")
	ErrShutdown         = errors.New("orchestrator is shut down")
)

const cancelledReason = "transcription cancelled"

// ProgressObserver receives non-terminal progress updates for one submitted job.
type ProgressObserver func(jobID string, progress int)

// OrchestratorConfig controls poll cadence.
type OrchestratorConfig struct {
	PollInterval time.Duration
}

// Orchestrator submits jobs and drives one poll loop per job until it resolves.
type Orchestrator struct {
	transport ports.Transport
	jobs      ports.JobStore
	events    ports.EventSink
	metrics   ports.JobMetrics
	logger    *slog.Logger
	cfg       OrchestratorConfig

	mu     sync.Mutex
	loops  map[string]*Handle
	closed bool
	wg     sync.WaitGroup
}

func NewOrchestrator(
	transport ports.Transport,
	jobs ports.JobStore,
	events ports.EventSink,
	metrics ports.JobMetrics,
	logger *slog.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if events == nil {
		events = ports.NopSink{}
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		transport: transport,
		jobs:      jobs,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		loops:     make(map[string]*Handle),
	}
}

// Submit validates the job and starts its submission and poll loop in the background.
// The returned handle resolves exactly once.
func (o *Orchestrator) Submit(ctx context.Context, jobID string, observer ProgressObserver) (*Handle, error) {
	job, err := o.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Audio) == 0 {
		return nil, domain.NewFailure(domain.FailureValidation, "no audio captured for this job", nil)
	}
	if job.Status != domain.JobStatusProcessing {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotProcessing, job.Status)
	}
	if observer == nil {
		observer = func(string, int) {}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShutdown
	}
	if _, exists := o.loops[jobID]; exists {
		o.mu.Unlock()
		return nil, ErrLoopActive
	}
	loopCtx, cancel := context.WithCancel(ctx)
	handle := newHandle(jobID, cancel)
	o.loops[jobID] = handle
	o.wg.Add(1)
	o.mu.Unlock()

	o.metrics.LoopStarted()
	go o.run(loopCtx, handle, job, observer)
	return handle, nil
}

// Cancel stops an in-flight job. The job resolves as cancelled.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	handle, ok := o.loops[jobID]
	o.mu.Unlock()
	if !ok {
		return ErrNoActiveLoop
	}
	handle.Cancel()
	return nil
}

// ActiveLoops reports how many poll loops are still running.
func (o *Orchestrator) ActiveLoops() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.loops)
}

// Shutdown cancels every active loop and waits for them to exit. Later
// submissions are rejected with ErrShutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, handle := range o.loops {
		handle.Cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, handle *Handle, job domain.Job, observer ProgressObserver) {
	defer o.wg.Done()

	final, err := o.execute(ctx, job, observer)
	handle.cancel()

	o.mu.Lock()
	delete(o.loops, handle.jobID)
	o.mu.Unlock()
	o.metrics.LoopStopped()

	outcome := string(domain.JobStatusComplete)
	if err != nil {
		outcome = string(domain.FailureKindOf(err))
		if outcome == "" {
			outcome = "store_error"
		}
	}
	o.metrics.JobResolved(outcome)
	handle.resolve(final, err)
}

func (o *Orchestrator) execute(ctx context.Context, job domain.Job, observer ProgressObserver) (domain.Job, error) {
	logger := o.logger.With(slog.String("job_id", job.ID))
	o.metrics.SubmissionStarted(job.Provider)

	taskID, err := o.submit(ctx, job)
	if err != nil {
		logger.Warn("transcription submission failed", slog.String("error", err.Error()))
		return o.fail(ctx, job.ID, err)
	}

	logger = logger.With(slog.String("task_id", taskID))
	logger.Info("transcription submitted", slog.String("provider", string(job.Provider)))
	return o.pollLoop(ctx, job.ID, taskID, observer, logger)
}

func (o *Orchestrator) submit(ctx context.Context, job domain.Job) (string, error) {
	payload, err := o.transport.Do(ctx, ports.Request{
		Method:   http.MethodPost,
		Endpoint: ports.SubmitEndpoint,
		Body: &ports.MultipartBody{
			Fields: map[string]string{
				"id":       job.ID,
				"provider": string(job.Provider),
			},
			FileField: "audio",
			FileName:  job.ID + "." + job.AudioFormat,
			File:      job.Audio,
		},
	})
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", domain.NewFailure(domain.FailureSubmissionRejected, submissionRejectedReason, err)
	}
	taskID := resp.taskID()
	if taskID == "" {
		reason := submissionRejectedReason
		if detail := rawText(resp.Error); detail != "" {
			reason = detail
		}
		return "", domain.NewFailure(domain.FailureSubmissionRejected, reason, nil)
	}
	return taskID, nil
}

// pollLoop polls immediately, then on every tick, until a terminal outcome.
func (o *Orchestrator) pollLoop(
	ctx context.Context,
	jobID string,
	taskID string,
	observer ProgressObserver,
	logger *slog.Logger,
) (domain.Job, error) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if job, done, err := o.pollOnce(ctx, jobID, taskID, observer, logger); done {
			return job, err
		}

		select {
		case <-ctx.Done():
			return o.fail(ctx, jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) pollOnce(
	ctx context.Context,
	jobID string,
	taskID string,
	observer ProgressObserver,
	logger *slog.Logger,
) (domain.Job, bool, error) {
	payload, err := o.transport.Do(ctx, ports.Get(ports.StatusEndpoint+url.PathEscape(taskID)))
	if err != nil {
		o.metrics.PollObserved(string(domain.FailureTransport))
		logger.Warn("status poll failed", slog.String("error", err.Error()))
		job, failErr := o.fail(ctx, jobID, err)
		return job, true, failErr
	}

	status, err := decodeStatus(payload)
	if err != nil {
		o.metrics.PollObserved(string(domain.FailureTransport))
		failure := domain.NewFailure(domain.FailureTransport, fmt.Sprintf("request failed: malformed status payload: %v", err), err)
		job, failErr := o.fail(ctx, jobID, failure)
		return job, true, failErr
	}
	o.metrics.PollObserved(status.outcome())

	switch status.Status {
	case taskStatusPending, taskStatusProcessing:
		job, err := o.jobs.UpdateProgress(jobID, status.progress())
		if err != nil {
			return job, true, err
		}
		logger.Debug("transcription progress", slog.Int("progress", job.Progress))
		observer(jobID, job.Progress)
		o.events.JobProgress(jobID, job.Progress)
		o.events.JobUpdated(job)
		return job, false, nil

	case taskStatusComplete:
		job, err := o.jobs.Complete(jobID, status.transcript(), status.category())
		if err != nil {
			return job, true, err
		}
		logger.Info("transcription complete", slog.Int("transcript_len", len(job.Transcript)))
		o.events.JobUpdated(job)
		return job, true, nil

	case taskStatusError:
		reason := status.detail()
		if reason == "" {
			reason = domain.DefaultTaskFailedReason
		}
		job, failErr := o.fail(ctx, jobID, domain.NewFailure(domain.FailureTaskFailed, reason, nil))
		return job, true, failErr

	default:
		if detail := status.detail(); detail != "" {
			job, failErr := o.fail(ctx, jobID, domain.NewFailure(domain.FailureTaskFailed, detail, nil))
			return job, true, failErr
		}
		logger.Warn("unrecognized task status", slog.String("status", string(status.Status)))
		job, err := o.jobs.Get(jobID)
		return job, err != nil, err
	}
}

// fail records the terminal error on the job and reports it to the event sink.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) (domain.Job, error) {
	failure := asFailure(ctx, cause)

	job, err := o.jobs.Fail(jobID, failure.Error())
	if err != nil {
		o.logger.Warn("failed to record job failure",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	} else {
		o.events.JobUpdated(job)
	}
	o.events.JobError(jobID, failure.Kind, failure.Error())
	return job, failure
}

func asFailure(ctx context.Context, cause error) *domain.Failure {
	if ctx.Err() != nil {
		return domain.NewFailure(domain.FailureCancelled, cancelledReason, ctx.Err())
	}
	var failure *domain.Failure
	if errors.As(cause, &failure) {
		return failure
	}
	return domain.NewFailure(domain.FailureTransport, fmt.Sprintf("request failed: %v", cause), cause)
}
