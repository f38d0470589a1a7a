package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voxjob/internal/audio"
	"voxjob/internal/config"
	"voxjob/internal/eventhub"
	"voxjob/internal/jobs"
	"voxjob/internal/logging"
	"voxjob/internal/metrics"
	"voxjob/internal/ports"
	"voxjob/internal/transport"
	"voxjob/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config         config.Config
	Logger         *slog.Logger
	InstallationID string

	Jobs         *jobs.Registry
	Transport    *transport.Client
	Orchestrator *usecase.Orchestrator
	Recorder     *usecase.RecordingController
	Copier       usecase.TranscriptCopier

	Metrics *metrics.Metrics
	Hub     *eventhub.Hub
}

// Build loads configuration and wires all backend dependencies.
func Build(eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, eventSink, clipboard)
}

// BuildWith wires all backend dependencies from an already loaded config.
// eventSink and clipboard may be nil for headless use.
func BuildWith(cfg config.Config, eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return Services{}, err
	}

	installationID, err := config.InstallationID(cfg.Identity)
	if err != nil {
		return Services{}, fmt.Errorf("resolve installation id: %w", err)
	}

	appMetrics := metrics.New()
	hub := eventhub.New(logger.With(slog.String("component", "eventhub")))

	sink := ports.FanoutSink{hub}
	if eventSink != nil {
		sink = append(ports.FanoutSink{eventSink}, sink...)
	}
	if clipboard == nil {
		clipboard = unavailableClipboard{}
	}

	client := transport.NewClient(transport.Config{
		BaseURL:        cfg.Backend.BaseURL,
		InstallationID: installationID,
		APIVersion:     cfg.Backend.APIVersion,
		Timeout:        cfg.Backend.Timeout,
	}, transport.WithMetrics(appMetrics), transport.WithLogger(logger))

	registry := jobs.NewRegistry()

	orchestrator := usecase.NewOrchestrator(
		client,
		registry,
		sink,
		appMetrics,
		logger.With(slog.String("component", "orchestrator")),
		usecase.OrchestratorConfig{PollInterval: cfg.Polling.Interval},
	)

	recorder := usecase.NewRecordingController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		registry,
		sink,
		logger.With(slog.String("component", "recorder")),
		usecase.RecorderConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			MaxDuration: cfg.Audio.MaxDuration,
		},
	)

	return Services{
		Config:         cfg,
		Logger:         logger,
		InstallationID: installationID,
		Jobs:           registry,
		Transport:      client,
		Orchestrator:   orchestrator,
		Recorder:       recorder,
		Copier:         usecase.NewTranscriptCopier(registry, clipboard),
		Metrics:        appMetrics,
		Hub:            hub,
	}, nil
}

// Close stops every poll loop and disconnects event subscribers.
func (s Services) Close(ctx context.Context) error {
	var errs []error
	if s.Orchestrator != nil {
		errs = append(errs, s.Orchestrator.Shutdown(ctx))
	}
	if s.Hub != nil {
		errs = append(errs, s.Hub.Close())
	}
	return errors.Join(errs...)
}

type unavailableClipboard struct{}

func (unavailableClipboard) SetText(context.Context, string) error {
	return errors.New("clipboard is not available")
}
