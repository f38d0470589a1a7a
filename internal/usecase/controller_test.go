package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"voxjob/internal/domain"
	"voxjob/internal/jobs"
	"voxjob/internal/ports"
)

func newTestRecorder(capture *fakeAudioCapture, cfg RecorderConfig) (*RecordingController, *jobs.Registry, *fakeEventSink) {
	registry := jobs.NewRegistry()
	events := &fakeEventSink{}
	c := NewRecordingController(
		capture,
		registry,
		events,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg,
	)
	return c, registry, events
}

func TestRecordingControllerStartStopCreatesPendingJob(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{blob: []byte("opus-bytes")}
	controller, registry, events := newTestRecorder(&fakeAudioCapture{sessions: []*fakeAudioSession{session}}, RecorderConfig{})

	if err := controller.Start(context.Background(), "anthropic"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	job, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if job.Status != domain.JobStatusPending || job.Provider != domain.ProviderAnthropic {
		t.Fatalf("unexpected job: %+v", job)
	}
	stored, err := registry.Get(job.ID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if string(stored.Audio) != "opus-bytes" || stored.AudioFormat != "webm" {
		t.Fatalf("unexpected stored audio: %q %s", stored.Audio, stored.AudioFormat)
	}

	states := events.snapshotStates()
	if len(states) != 3 {
		t.Fatalf("expected 3 state transitions, got %d", len(states))
	}
	if states[0].reason != domain.RecordingReasonStarted {
		t.Fatalf("unexpected first reason: %s", states[0].reason)
	}
	if states[1].state != domain.RecordingStateStopping {
		t.Fatalf("unexpected second state: %s", states[1].state)
	}
	if states[2].state != domain.RecordingStateIdle || states[2].reason != domain.RecordingReasonStopped {
		t.Fatalf("unexpected final transition: %+v", states[2])
	}
	if len(events.snapshotUpdates()) != 1 {
		t.Fatalf("expected one job update event")
	}
	if controller.Status().Active {
		t.Fatalf("expected controller to be idle after stop")
	}
}

func TestRecordingControllerRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	capture := &fakeAudioCapture{}
	controller, _, _ := newTestRecorder(capture, RecorderConfig{})

	err := controller.Start(context.Background(), "whisper-local")
	if !domain.IsFailureKind(err, domain.FailureValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if capture.startCalls() != 0 {
		t.Fatalf("capture should not start for an invalid provider")
	}
}

func TestRecordingControllerStopWithoutActiveRecording(t *testing.T) {
	t.Parallel()

	controller, _, _ := newTestRecorder(&fakeAudioCapture{}, RecorderConfig{})

	if _, err := controller.Stop(context.Background()); !errors.Is(err, ErrNoActiveRecording) {
		t.Fatalf("expected ErrNoActiveRecording, got %v", err)
	}
	if err := controller.Abort(); !errors.Is(err, ErrNoActiveRecording) {
		t.Fatalf("expected ErrNoActiveRecording, got %v", err)
	}
}

func TestRecordingControllerEmptyCaptureCreatesNoJob(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{}
	controller, registry, events := newTestRecorder(&fakeAudioCapture{sessions: []*fakeAudioSession{session}}, RecorderConfig{})

	_ = controller.Start(context.Background(), "openai")
	if _, err := controller.Stop(context.Background()); !errors.Is(err, ErrEmptyRecording) {
		t.Fatalf("expected ErrEmptyRecording, got %v", err)
	}
	if len(registry.List()) != 0 {
		t.Fatalf("expected no job for an empty capture")
	}
	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.RecordingReasonEmpty {
		t.Fatalf("expected recording_empty, got %s", states[len(states)-1].reason)
	}
}

func TestRecordingControllerCaptureStopFailure(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{stopErr: errors.New("ffmpeg exited")}
	controller, _, events := newTestRecorder(&fakeAudioCapture{sessions: []*fakeAudioSession{session}}, RecorderConfig{})

	_ = controller.Start(context.Background(), "openai")
	if _, err := controller.Stop(context.Background()); err == nil || err.Error() != "ffmpeg exited" {
		t.Fatalf("expected capture error, got %v", err)
	}
	states := events.snapshotStates()
	last := states[len(states)-1]
	if last.state != domain.RecordingStateError || last.reason != domain.RecordingReasonCaptureFail {
		t.Fatalf("unexpected final transition: %+v", last)
	}
	if controller.Status().Message != "ffmpeg exited" {
		t.Fatalf("expected status to carry the capture error")
	}
}

func TestRecordingControllerStartFailure(t *testing.T) {
	t.Parallel()

	capture := &fakeAudioCapture{err: errors.New("no microphone")}
	controller, _, events := newTestRecorder(capture, RecorderConfig{})

	if err := controller.Start(context.Background(), "openai"); err == nil {
		t.Fatalf("expected start error")
	}
	states := events.snapshotStates()
	if len(states) != 1 || states[0].reason != domain.RecordingReasonCaptureFail {
		t.Fatalf("unexpected transitions: %+v", states)
	}
}

func TestRecordingControllerRestartDiscardsPreviousCapture(t *testing.T) {
	t.Parallel()

	first := &fakeAudioSession{blob: []byte("first")}
	second := &fakeAudioSession{blob: []byte("second")}
	controller, registry, events := newTestRecorder(&fakeAudioCapture{sessions: []*fakeAudioSession{first, second}}, RecorderConfig{})

	if err := controller.Start(context.Background(), "openai"); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := controller.Start(context.Background(), "openai"); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if first.stops() == 0 {
		t.Fatalf("expected first capture to be stopped on restart")
	}

	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.RecordingReasonRestarted {
		t.Fatalf("expected recording_restarted reason")
	}

	job, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	stored, _ := registry.Get(job.ID)
	if string(stored.Audio) != "second" || len(registry.List()) != 1 {
		t.Fatalf("expected only the second capture to become a job")
	}
}

func TestRecordingControllerAbortDiscards(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{blob: []byte("abc")}
	controller, registry, events := newTestRecorder(&fakeAudioCapture{sessions: []*fakeAudioSession{session}}, RecorderConfig{})

	_ = controller.Start(context.Background(), "openai")
	if err := controller.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
	if len(registry.List()) != 0 {
		t.Fatalf("abort must not create a job")
	}
	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.RecordingReasonDiscarded {
		t.Fatalf("expected discarded reason, got %s", states[len(states)-1].reason)
	}
}

func TestRecordingControllerStopsAtDurationLimit(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{blob: []byte("capped")}
	controller, registry, events := newTestRecorder(
		&fakeAudioCapture{sessions: []*fakeAudioSession{session}},
		RecorderConfig{MaxDuration: 20 * time.Millisecond},
	)

	if err := controller.Start(context.Background(), "openai"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		states := events.snapshotStates()
		last := states[len(states)-1]
		if last.state == domain.RecordingStateIdle && last.reason == domain.RecordingReasonLimit {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected capture to stop at the duration limit, last transition %+v", last)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if list := registry.List(); len(list) != 1 || string(list[0].Audio) != "capped" {
		t.Fatalf("expected the capped capture to become a job")
	}
	if _, err := controller.Stop(context.Background()); !errors.Is(err, ErrNoActiveRecording) {
		t.Fatalf("expected manual stop after limit to find nothing, got %v", err)
	}
}

func TestRecordingControllerStatusActive(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{blob: []byte("abc")}
	controller, _, _ := newTestRecorder(&fakeAudioCapture{sessions: []*fakeAudioSession{session}}, RecorderConfig{})

	idle := controller.Status()
	if idle.State != domain.RecordingStateIdle || idle.MaxDuration != DefaultMaxRecording {
		t.Fatalf("unexpected idle status: %+v", idle)
	}

	_ = controller.Start(context.Background(), "openai")
	status := controller.Status()
	if status.State != domain.RecordingStateRecording || !status.Active || status.Provider != domain.ProviderOpenAI {
		t.Fatalf("unexpected status: %+v", status)
	}
	_ = controller.Abort()
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

func (f *fakeAudioCapture) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAudioSession struct {
	mu        sync.Mutex
	blob      []byte
	stopCalls int
	stopErr   error
}

func (f *fakeAudioSession) Stop() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return f.blob, nil
}

func (f *fakeAudioSession) Format() string { return "webm" }

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}
