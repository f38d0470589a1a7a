package bootstrap

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voxjob/internal/config"
	"voxjob/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Backend:  config.BackendConfig{BaseURL: "http://127.0.0.1:1", APIVersion: "1.0.0", Timeout: time.Second},
		Polling:  config.PollingConfig{Interval: 10 * time.Millisecond},
		Audio:    config.AudioConfig{RecorderCommand: "ffmpeg", MaxDuration: time.Second},
		Identity: config.IdentityConfig{Path: filepath.Join(dir, "installation-id")},
		Jobs:     config.JobsConfig{DefaultProvider: "openai"},
		Logging:  config.LoggingConfig{Level: "error", Output: filepath.Join(dir, "voxjob.log")},
	}
}

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VOXJOB_CONFIG", "")
	t.Setenv("VOXJOB_INSTALLATION_ID", "")
	t.Setenv("VOXJOB_IDENTITY_FILE", "")
	t.Setenv("VOXJOB_LOG_OUTPUT", filepath.Join(home, "voxjob.log"))

	services, err := Build(noopEventSink{}, noopClipboard{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Orchestrator == nil || services.Recorder == nil || services.Jobs == nil {
		t.Fatalf("expected core services")
	}
	if services.InstallationID == "" {
		t.Fatalf("expected installation id")
	}
	if _, err := os.Stat(filepath.Join(home, ".config", "voxjob", "installation-id")); err != nil {
		t.Fatalf("expected installation id to be persisted: %v", err)
	}
}

func TestBuildFailsOnBadConfigFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "voxjob.yaml")
	if err := os.WriteFile(path, []byte("polling: [nope"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("VOXJOB_CONFIG", path)

	if _, err := Build(noopEventSink{}, noopClipboard{}); err == nil {
		t.Fatalf("expected build error due to invalid config file")
	}
}

func TestBuildWithHeadlessDefaults(t *testing.T) {
	t.Parallel()

	services, err := BuildWith(testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	job, _ := services.Jobs.Create("openai", []byte("a"), "webm")
	_, _ = services.Jobs.MarkProcessing(job.ID)
	_, _ = services.Jobs.Complete(job.ID, "done", "")
	if _, err := services.Copier.Copy(context.Background(), job.ID); err == nil {
		t.Fatalf("expected headless clipboard to be unavailable")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := services.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestBuildWithRoutesEventsToSink(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	services, err := BuildWith(testConfig(t), sink, noopClipboard{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	job, _ := services.Jobs.Create("openai", []byte("a"), "webm")
	_, _ = services.Jobs.MarkProcessing(job.ID)
	handle, err := services.Orchestrator.Submit(context.Background(), job.ID, nil)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := handle.Wait(ctx); !domain.IsFailureKind(err, domain.FailureTransport) {
		t.Fatalf("expected transport failure against a closed port, got %v", err)
	}
	if sink.errorCount() != 1 {
		t.Fatalf("expected one error event, got %d", sink.errorCount())
	}
}

func TestStartListenersServesMetricsAndEvents(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Events.Addr = "127.0.0.1:0"
	services, err := BuildWith(cfg, nil, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	listeners, err := services.StartListeners()
	if err != nil {
		t.Fatalf("start listeners: %v", err)
	}
	defer listeners.Shutdown(context.Background())

	resp, err := http.Get("http://" + listeners.MetricsAddr + "/metrics")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "voxjob_active_poll_loops") {
		t.Fatalf("unexpected metrics response: %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + listeners.EventsAddr + "/events")
	if err != nil {
		t.Fatalf("events request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected plain GET on websocket endpoint to be rejected, got %d", resp.StatusCode)
	}
}

func TestStartListenersSkipsEmptyAddresses(t *testing.T) {
	t.Parallel()

	services, err := BuildWith(testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	listeners, err := services.StartListeners()
	if err != nil {
		t.Fatalf("start listeners: %v", err)
	}
	if listeners.MetricsAddr != "" || listeners.EventsAddr != "" {
		t.Fatalf("expected no listeners, got %+v", listeners)
	}
}

type noopEventSink struct{}

func (noopEventSink) RecordingStateChanged(domain.RecordingState, domain.RecordingReason) {}
func (noopEventSink) JobUpdated(domain.Job)                                              {}
func (noopEventSink) JobProgress(string, int)                                            {}
func (noopEventSink) JobError(string, domain.FailureKind, string)                        {}

type recordingSink struct {
	noopEventSink

	mu     sync.Mutex
	errors int
}

func (r *recordingSink) JobError(string, domain.FailureKind, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func (r *recordingSink) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

type noopClipboard struct{}

func (noopClipboard) SetText(_ context.Context, _ string) error { return nil }
