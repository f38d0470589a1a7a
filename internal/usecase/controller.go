package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voxjob/internal/domain"
	"voxjob/internal/ports"
)

var (
	ErrNoActiveRecording = errors.New("no active recording")
	ErrEmptyRecording    = errors.New("recording captured no audio")
)

// DefaultMaxRecording is the capture ceiling applied when none is configured.
const DefaultMaxRecording = 10 * time.Second

// RecorderConfig controls microphone capture.
type RecorderConfig struct {
	Audio       ports.AudioConfig
	MaxDuration time.Duration
}

// RecordingController captures one recording at a time and turns each finished
// capture into a pending job.
type RecordingController struct {
	audio  ports.AudioCapture
	jobs   ports.JobCreator
	events ports.EventSink
	logger *slog.Logger
	cfg    RecorderConfig
	now    func() time.Time

	mu      sync.Mutex
	current *activeRecording
	message string
}

func NewRecordingController(
	audio ports.AudioCapture,
	jobs ports.JobCreator,
	events ports.EventSink,
	logger *slog.Logger,
	cfg RecorderConfig,
) *RecordingController {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxRecording
	}
	if events == nil {
		events = ports.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordingController{
		audio:  audio,
		jobs:   jobs,
		events: events,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start begins capturing for the given provider. An active capture is discarded.
func (c *RecordingController) Start(ctx context.Context, provider string) error {
	p, err := domain.ParseProvider(provider)
	if err != nil {
		return err
	}

	var previous *activeRecording
	c.mu.Lock()
	if c.current != nil {
		previous = c.current
		c.current = nil
	}
	c.mu.Unlock()

	if previous != nil && previous.claim() {
		c.discard(previous)
		previous.setState(domain.RecordingStateIdle)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		c.setMessage(err.Error())
		c.events.RecordingStateChanged(domain.RecordingStateError, domain.RecordingReasonCaptureFail)
		return err
	}

	active := &activeRecording{
		cancel:    cancel,
		audio:     audioSession,
		provider:  p,
		startedAt: c.now().UTC(),
		state:     domain.RecordingStateRecording,
	}
	active.limit = time.AfterFunc(c.cfg.MaxDuration, func() {
		c.stopAtLimit(active)
	})

	c.mu.Lock()
	c.current = active
	c.message = ""
	c.mu.Unlock()

	reason := domain.RecordingReasonStarted
	if previous != nil {
		reason = domain.RecordingReasonRestarted
	}
	c.logger.Info("recording started", slog.String("provider", string(p)))
	c.events.RecordingStateChanged(domain.RecordingStateRecording, reason)
	return nil
}

// Stop ends the active capture and stores it as a pending job.
func (c *RecordingController) Stop(_ context.Context) (domain.Job, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.Job{}, err
	}
	return c.finalize(active, domain.RecordingReasonStopped)
}

// Abort discards the active capture without creating a job.
func (c *RecordingController) Abort() error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	if !active.claim() {
		return ErrNoActiveRecording
	}
	c.discard(active)
	c.finish(active, domain.RecordingStateIdle, domain.RecordingReasonDiscarded)
	return nil
}

// Status returns the current capture status.
func (c *RecordingController) Status() domain.RecordingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.RecordingStatus{
			State:       domain.RecordingStateIdle,
			MaxDuration: c.cfg.MaxDuration,
			Message:     c.message,
		}
	}
	state := c.current.getState()
	return domain.RecordingStatus{
		State:       state,
		Active:      state != domain.RecordingStateIdle,
		Provider:    c.current.provider,
		StartedAt:   c.current.startedAt,
		MaxDuration: c.cfg.MaxDuration,
	}
}

func (c *RecordingController) stopAtLimit(active *activeRecording) {
	job, err := c.finalize(active, domain.RecordingReasonLimit)
	switch {
	case errors.Is(err, ErrNoActiveRecording):
	case err != nil:
		c.logger.Warn("recording limit stop failed", slog.String("error", err.Error()))
	default:
		c.logger.Info("recording stopped at duration limit",
			slog.String("job_id", job.ID),
			slog.Duration("limit", c.cfg.MaxDuration),
		)
	}
}

func (c *RecordingController) finalize(active *activeRecording, reason domain.RecordingReason) (domain.Job, error) {
	if !active.claim() {
		return domain.Job{}, ErrNoActiveRecording
	}
	active.stopLimit()
	c.events.RecordingStateChanged(domain.RecordingStateStopping, reason)

	blob, stopErr := active.audio.Stop()
	active.cancel()

	if len(blob) == 0 {
		if stopErr != nil {
			c.setMessage(stopErr.Error())
			c.finish(active, domain.RecordingStateError, domain.RecordingReasonCaptureFail)
			return domain.Job{}, stopErr
		}
		c.finish(active, domain.RecordingStateIdle, domain.RecordingReasonEmpty)
		return domain.Job{}, ErrEmptyRecording
	}
	if stopErr != nil {
		c.logger.Warn("audio capture stopped uncleanly", slog.String("error", stopErr.Error()))
	}

	job, err := c.jobs.Create(string(active.provider), blob, active.audio.Format())
	if err != nil {
		c.setMessage(err.Error())
		c.finish(active, domain.RecordingStateError, domain.RecordingReasonCaptureFail)
		return domain.Job{}, err
	}

	c.logger.Info("recording captured",
		slog.String("job_id", job.ID),
		slog.Int("bytes", job.AudioSize),
		slog.String("reason", string(reason)),
	)
	c.events.JobUpdated(job)
	c.finish(active, domain.RecordingStateIdle, reason)
	return job, nil
}

func (c *RecordingController) getCurrent() (*activeRecording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoActiveRecording
	}
	return c.current, nil
}

func (c *RecordingController) discard(active *activeRecording) {
	active.stopLimit()
	active.cancel()
	_, _ = active.audio.Stop()
}

func (c *RecordingController) setMessage(message string) {
	c.mu.Lock()
	c.message = message
	c.mu.Unlock()
}

func (c *RecordingController) finish(active *activeRecording, state domain.RecordingState, reason domain.RecordingReason) {
	active.setState(state)

	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.mu.Unlock()

	c.events.RecordingStateChanged(state, reason)
}
