package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voxjob/internal/bootstrap"
	"voxjob/internal/domain"
	"voxjob/internal/usecase"
)

const (
	eventRecording = "voxjob:recording"
	eventJob       = "voxjob:job"
	eventProgress  = "voxjob:progress"
	eventError     = "voxjob:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services  bootstrap.Services
	listeners *bootstrap.Listeners
	ready     bool
	bootErr   error

	mu       sync.Mutex
	provider domain.Provider
}

func NewApp() *App {
	return &App{provider: domain.ProviderOpenAI}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{})
	if err != nil {
		a.bootErr = err
		a.JobError("", domain.FailureValidation, fmt.Sprintf("startup failed: %v", err))
		return
	}
	a.attach(services)

	listeners, err := services.StartListeners()
	if err != nil {
		services.Logger.Warn("optional listeners unavailable", slog.String("error", err.Error()))
	} else {
		a.listeners = listeners
	}
	a.RecordingStateChanged(domain.RecordingStateIdle, domain.RecordingReasonReady)
}

func (a *App) attach(services bootstrap.Services) {
	a.services = services
	a.ready = true
	if p, err := domain.ParseProvider(services.Config.Jobs.DefaultProvider); err == nil {
		a.mu.Lock()
		a.provider = p
		a.mu.Unlock()
	}
}

func (a *App) shutdown(ctx context.Context) {
	if !a.ready {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if a.listeners != nil {
		_ = a.listeners.Shutdown(shutdownCtx)
	}
	if err := a.services.Close(shutdownCtx); err != nil {
		a.services.Logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
}

// StartRecording begins capturing audio for the given provider, or the
// selected provider when empty.
func (a *App) StartRecording(provider string) (domain.RecordingStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.RecordingStatus{}, err
	}
	if provider == "" {
		provider = string(a.selectedProvider())
	}
	if err := a.services.Recorder.Start(a.runtimeContext(), provider); err != nil {
		return a.services.Recorder.Status(), err
	}
	return a.services.Recorder.Status(), nil
}

// StopRecording ends the capture and returns the new pending job.
func (a *App) StopRecording() (domain.Job, error) {
	if err := a.requireReady(); err != nil {
		return domain.Job{}, err
	}
	return a.services.Recorder.Stop(a.runtimeContext())
}

// AbortRecording discards an in-progress recording.
func (a *App) AbortRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Recorder.Abort(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveRecording) {
			return nil
		}
		return err
	}
	return nil
}

// GetRecordingStatus returns the current capture status.
func (a *App) GetRecordingStatus() domain.RecordingStatus {
	if !a.ready {
		if a.bootErr != nil {
			return domain.RecordingStatus{State: domain.RecordingStateError, Message: a.bootErr.Error()}
		}
		return domain.RecordingStatus{State: domain.RecordingStateIdle}
	}
	return a.services.Recorder.Status()
}

// SelectProvider sets the provider used for new recordings.
func (a *App) SelectProvider(provider string) (string, error) {
	p, err := domain.ParseProvider(provider)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	a.provider = p
	a.mu.Unlock()
	return string(p), nil
}

// ListJobs returns every job of this session in creation order.
func (a *App) ListJobs() []domain.Job {
	if !a.ready {
		return []domain.Job{}
	}
	return a.services.Jobs.List()
}

// StartTranscription submits a pending job. Progress and the terminal outcome
// arrive as events.
func (a *App) StartTranscription(jobID string) (domain.Job, error) {
	if err := a.requireReady(); err != nil {
		return domain.Job{}, err
	}

	job, err := a.services.Jobs.MarkProcessing(jobID)
	if err != nil {
		return domain.Job{}, err
	}

	handle, err := a.services.Orchestrator.Submit(a.runtimeContext(), jobID, nil)
	if err != nil {
		failed, failErr := a.services.Jobs.Fail(jobID, err.Error())
		if failErr == nil {
			a.JobUpdated(failed)
		}
		a.JobError(jobID, domain.FailureKindOf(err), err.Error())
		return failed, err
	}
	a.JobUpdated(job)

	if a.services.Config.Jobs.AutoCopy {
		go a.copyWhenDone(handle)
	}
	return job, nil
}

// CancelTranscription stops an in-flight job.
func (a *App) CancelTranscription(jobID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Orchestrator.Cancel(jobID)
}

// RemoveJob deletes a job that is not processing.
func (a *App) RemoveJob(jobID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Jobs.Remove(jobID)
}

// GetTranscript returns the transcript of a completed job.
func (a *App) GetTranscript(jobID string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	job, err := a.services.Jobs.Get(jobID)
	if err != nil {
		return "", err
	}
	if job.Status != domain.JobStatusComplete {
		return "", fmt.Errorf("%w: %s is %s", usecase.ErrTranscriptNotReady, jobID, job.Status)
	}
	return job.Transcript, nil
}

// CopyTranscript writes a completed transcript to the clipboard.
func (a *App) CopyTranscript(jobID string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.services.Copier.Copy(a.runtimeContext(), jobID)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if !a.ready {
		return map[string]string{}
	}

	cfg := a.services.Config
	info := map[string]string{
		"backend":      cfg.Backend.BaseURL,
		"apiVersion":   cfg.Backend.APIVersion,
		"provider":     string(a.selectedProvider()),
		"pollInterval": cfg.Polling.Interval.String(),
		"maxRecording": cfg.Audio.MaxDuration.String(),
		"audioInput":   cfg.Audio.InputDevice,
		"autoCopy":     strconv.FormatBool(cfg.Jobs.AutoCopy),
		"activeJobs":   strconv.Itoa(a.services.Orchestrator.ActiveLoops()),
	}
	if a.listeners != nil {
		info["metricsAddr"] = a.listeners.MetricsAddr
		info["eventsAddr"] = a.listeners.EventsAddr
	}
	return info
}

func (a *App) copyWhenDone(handle *usecase.Handle) {
	job, err := handle.Wait(context.Background())
	if err != nil {
		return
	}
	if _, err := a.services.Copier.Copy(a.runtimeContext(), job.ID); err != nil {
		a.services.Logger.Warn("auto copy failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

func (a *App) selectedProvider() domain.Provider {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.provider
}

func (a *App) runtimeContext() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if !a.ready {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// RecordingStateChanged emits capture lifecycle updates to the frontend.
func (a *App) RecordingStateChanged(state domain.RecordingState, reason domain.RecordingReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecording, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": recordingReasonMessage(reason),
	})
}

// JobUpdated emits the latest job snapshot.
func (a *App) JobUpdated(job domain.Job) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventJob, job)
}

// JobProgress emits progress for a processing job.
func (a *App) JobProgress(jobID string, progress int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventProgress, map[string]any{
		"jobId":    jobID,
		"progress": progress,
	})
}

// JobError emits a job failure to the UI.
func (a *App) JobError(jobID string, kind domain.FailureKind, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"jobId":   jobID,
		"kind":    string(kind),
		"message": failureMessage(kind, detail),
		"detail":  detail,
	})
}

func recordingReasonMessage(reason domain.RecordingReason) string {
	switch reason {
	case domain.RecordingReasonReady:
		return "Ready to record"
	case domain.RecordingReasonStarted:
		return "Recording started"
	case domain.RecordingReasonRestarted:
		return "Recording restarted; previous capture discarded"
	case domain.RecordingReasonStopped:
		return "Recording saved"
	case domain.RecordingReasonLimit:
		return "Recording limit reached; recording saved"
	case domain.RecordingReasonDiscarded:
		return "Recording discarded"
	case domain.RecordingReasonEmpty:
		return "No audio captured"
	case domain.RecordingReasonCaptureFail:
		return "Microphone capture failed"
	default:
		return ""
	}
}

func failureMessage(kind domain.FailureKind, detail string) string {
	switch kind {
	case domain.FailureTransport:
		return "Could not reach the transcription service"
	case domain.FailureSubmissionRejected:
		return "Failed to initiate transcription."
	case domain.FailureTaskFailed:
		return "Transcription failed"
	case domain.FailureValidation:
		return "Invalid request"
	case domain.FailureCancelled:
		return "Transcription cancelled"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
