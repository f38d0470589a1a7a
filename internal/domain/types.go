package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus models the transcription job lifecycle.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether no further transitions can follow.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// Provider selects the backend pipeline used for a job.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Providers lists every supported provider in display order.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic}
}

// ParseProvider validates a provider name.
func ParseProvider(value string) (Provider, error) {
	candidate := Provider(strings.ToLower(strings.TrimSpace(value)))
	for _, p := range Providers() {
		if p == candidate {
			return p, nil
		}
	}
	return "", NewFailure(FailureValidation, fmt.Sprintf("unsupported provider %q", value), nil)
}

// DefaultCategory labels a job until the backend classifies its transcript.
const DefaultCategory = "Audio"

// Job is one tracked transcription request.
type Job struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress"`
	Provider      Provider  `json:"provider"`
	Audio         []byte    `json:"-"`
	AudioFormat   string    `json:"audioFormat"`
	AudioSize     int       `json:"audioSize"`
	Category      string    `json:"category"`
	Transcript    string    `json:"transcript,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RecordingState models the capture lifecycle.
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateRecording RecordingState = "recording"
	RecordingStateStopping  RecordingState = "stopping"
	RecordingStateError     RecordingState = "error"
)

// RecordingReason provides a structured reason for recording transitions.
type RecordingReason string

const (
	RecordingReasonReady       RecordingReason = "ready"
	RecordingReasonStarted     RecordingReason = "recording_started"
	RecordingReasonRestarted   RecordingReason = "recording_restarted"
	RecordingReasonStopped     RecordingReason = "recording_stopped"
	RecordingReasonLimit       RecordingReason = "recording_limit"
	RecordingReasonDiscarded   RecordingReason = "recording_discarded"
	RecordingReasonEmpty       RecordingReason = "recording_empty"
	RecordingReasonCaptureFail RecordingReason = "capture_failed"
)

// RecordingStatus summarizes the current capture state.
type RecordingStatus struct {
	State       RecordingState `json:"state"`
	Active      bool           `json:"active"`
	Provider    Provider       `json:"provider,omitempty"`
	StartedAt   time.Time      `json:"startedAt,omitempty"`
	MaxDuration time.Duration  `json:"maxDuration"`
	Message     string         `json:"message,omitempty"`
}
