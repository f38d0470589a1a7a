package ports

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"voxjob/internal/domain"
)

// Endpoint paths exposed by the transcription backend.
const (
	SubmitEndpoint = "/transcribe"
	StatusEndpoint = "/transcribe/status/"
)

// Request is one outbound call to the transcription backend.
// Body is nil, a *MultipartBody, or any JSON-marshalable value.
type Request struct {
	Method   string
	Endpoint string
	Body     any
}

// MultipartBody carries plain form fields plus at most one binary file part.
type MultipartBody struct {
	Fields    map[string]string
	FileField string
	FileName  string
	File      []byte
}

// Transport issues backend requests. Every failure is a *domain.Failure.
type Transport interface {
	Do(ctx context.Context, req Request) (json.RawMessage, error)
}

// Get is a convenience for bodiless GET requests.
func Get(endpoint string) Request {
	return Request{Method: http.MethodGet, Endpoint: endpoint}
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session that yields one blob when stopped.
type AudioSession interface {
	Stop() ([]byte, error)
	Format() string
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// JobStore holds caller-owned job records and enforces their state machine.
type JobStore interface {
	Get(id string) (domain.Job, error)
	UpdateProgress(id string, progress int) (domain.Job, error)
	Complete(id string, transcript string, category string) (domain.Job, error)
	Fail(id string, reason string) (domain.Job, error)
}

// JobCreator stores a freshly captured recording as a pending job.
type JobCreator interface {
	Create(provider string, audio []byte, format string) (domain.Job, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	RecordingStateChanged(state domain.RecordingState, reason domain.RecordingReason)
	JobUpdated(job domain.Job)
	JobProgress(jobID string, progress int)
	JobError(jobID string, kind domain.FailureKind, detail string)
}

// JobMetrics records orchestrator and transport activity.
type JobMetrics interface {
	RequestObserved(endpoint string, duration time.Duration, failed bool)
	SubmissionStarted(provider domain.Provider)
	PollObserved(outcome string)
	JobResolved(outcome string)
	LoopStarted()
	LoopStopped()
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) RequestObserved(string, time.Duration, bool) {}
func (NopMetrics) SubmissionStarted(domain.Provider)           {}
func (NopMetrics) PollObserved(string)                         {}
func (NopMetrics) JobResolved(string)                          {}
func (NopMetrics) LoopStarted()                                {}
func (NopMetrics) LoopStopped()                                {}

// FanoutSink forwards every event to each sink in order.
type FanoutSink []EventSink

func (f FanoutSink) RecordingStateChanged(state domain.RecordingState, reason domain.RecordingReason) {
	for _, sink := range f {
		sink.RecordingStateChanged(state, reason)
	}
}

func (f FanoutSink) JobUpdated(job domain.Job) {
	for _, sink := range f {
		sink.JobUpdated(job)
	}
}

func (f FanoutSink) JobProgress(jobID string, progress int) {
	for _, sink := range f {
		sink.JobProgress(jobID, progress)
	}
}

func (f FanoutSink) JobError(jobID string, kind domain.FailureKind, detail string) {
	for _, sink := range f {
		sink.JobError(jobID, kind, detail)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordingStateChanged(domain.RecordingState, domain.RecordingReason) {}
func (NopSink) JobUpdated(domain.Job)                                              {}
func (NopSink) JobProgress(string, int)                                            {}
func (NopSink) JobError(string, domain.FailureKind, string)                        {}
