package domain

import "errors"

// FailureKind classifies why a job could not produce a transcript.
type FailureKind string

const (
	FailureTransport          FailureKind = "transport_failure"
	FailureSubmissionRejected FailureKind = "submission_rejected"
	FailureTaskFailed         FailureKind = "task_failed"
	FailureValidation         FailureKind = "validation_failure"
	FailureCancelled          FailureKind = "cancelled"
)

// DefaultTaskFailedReason is used when the backend reports an error without detail.
const DefaultTaskFailedReason = "Transcription task failed."

// Failure is the single error shape produced by the transport and the orchestrator.
type Failure struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func NewFailure(kind FailureKind, reason string, err error) *Failure {
	return &Failure{Kind: kind, Reason: reason, Err: err}
}

func (f *Failure) Error() string {
	if f.Reason != "" {
		return f.Reason
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// FailureKindOf returns the kind carried by err, or "" when err is not a Failure.
func FailureKindOf(err error) FailureKind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return ""
}

// IsFailureKind reports whether err is a Failure of the given kind.
func IsFailureKind(err error, kind FailureKind) bool {
	return err != nil && FailureKindOf(err) == kind
}
