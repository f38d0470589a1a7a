package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxjob/internal/bootstrap"
	"voxjob/internal/config"
	"voxjob/internal/domain"
	"voxjob/internal/usecase"
)

func main() {
	configPath := flag.String("config", os.Getenv("VOXJOB_CONFIG"), "Path to YAML configuration file")
	file := flag.String("file", "", "Audio file to transcribe; records from the microphone when empty")
	record := flag.Duration("record", 5*time.Second, "Microphone capture length when -file is empty")
	provider := flag.String("provider", "", "Transcription provider (openai or anthropic)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	eventsAddr := flag.String("events-addr", "", "Serve the websocket event feed on this address")
	flag.Parse()

	if err := run(*configPath, *file, *record, *provider, *metricsAddr, *eventsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "voxjob: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, file string, record time.Duration, provider, metricsAddr, eventsAddr string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if eventsAddr != "" {
		cfg.Events.Addr = eventsAddr
	}
	if provider == "" {
		provider = cfg.Jobs.DefaultProvider
	}
	if _, err := domain.ParseProvider(provider); err != nil {
		return err
	}

	services, err := bootstrap.BuildWith(cfg, nil, nil)
	if err != nil {
		return err
	}
	logger := services.Logger

	listeners, err := services.StartListeners()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := listeners.Shutdown(shutdownCtx); err != nil {
			logger.Warn("listener shutdown failed", slog.String("error", err.Error()))
		}
		if err := services.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	var job domain.Job
	if file != "" {
		job, err = createFromFile(services, file, provider)
	} else {
		job, err = createFromMicrophone(ctx, services, provider, record)
	}
	if err != nil {
		return err
	}
	logger.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("provider", string(job.Provider)),
		slog.Int("audio_bytes", job.AudioSize),
	)

	if _, err := services.Jobs.MarkProcessing(job.ID); err != nil {
		return err
	}
	handle, err := services.Orchestrator.Submit(ctx, job.ID, func(jobID string, progress int) {
		logger.Info("transcription progress", slog.String("job_id", jobID), slog.Int("progress", progress))
	})
	if err != nil {
		return err
	}

	done, err := handle.Wait(context.Background())
	if err != nil {
		return fmt.Errorf("transcription %s failed: %w", done.ID, err)
	}
	logger.Info("transcription complete", slog.String("job_id", done.ID), slog.String("category", done.Category))
	fmt.Println(done.Transcript)
	return nil
}

func createFromFile(services bootstrap.Services, path string, provider string) (domain.Job, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return domain.Job{}, fmt.Errorf("read audio file: %w", err)
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		format = "webm"
	}
	return services.Jobs.Create(provider, audio, format)
}

func createFromMicrophone(ctx context.Context, services bootstrap.Services, provider string, length time.Duration) (domain.Job, error) {
	if err := services.Recorder.Start(ctx, provider); err != nil {
		return domain.Job{}, err
	}
	services.Logger.Info("recording", slog.Duration("length", length))

	select {
	case <-ctx.Done():
		_ = services.Recorder.Abort()
		return domain.Job{}, ctx.Err()
	case <-time.After(length):
	}

	job, err := services.Recorder.Stop(ctx)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, usecase.ErrNoActiveRecording) {
		return domain.Job{}, err
	}
	// The duration ceiling already finalized the capture.
	jobs := services.Jobs.List()
	if len(jobs) == 0 {
		return domain.Job{}, err
	}
	return jobs[len(jobs)-1], nil
}
