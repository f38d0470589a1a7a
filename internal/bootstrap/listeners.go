package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Listeners are the optional metrics and event endpoints.
type Listeners struct {
	MetricsAddr string
	EventsAddr  string

	servers []*http.Server
}

// StartListeners serves /metrics and /events on the configured addresses.
// Empty addresses are skipped.
func (s Services) StartListeners() (*Listeners, error) {
	l := &Listeners{}

	if addr := strings.TrimSpace(s.Config.Metrics.Addr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.Metrics.Handler())
		bound, err := l.serve(addr, mux, s.Logger)
		if err != nil {
			return nil, fmt.Errorf("start metrics listener: %w", err)
		}
		l.MetricsAddr = bound
	}

	if addr := strings.TrimSpace(s.Config.Events.Addr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/events", s.Hub)
		bound, err := l.serve(addr, mux, s.Logger)
		if err != nil {
			_ = l.Shutdown(context.Background())
			return nil, fmt.Errorf("start events listener: %w", err)
		}
		l.EventsAddr = bound
	}

	return l, nil
}

func (l *Listeners) serve(addr string, handler http.Handler, logger *slog.Logger) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	l.servers = append(l.servers, server)

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listener stopped", slog.String("addr", ln.Addr().String()), slog.String("error", err.Error()))
		}
	}()
	logger.Info("listener started", slog.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown stops every listener.
func (l *Listeners) Shutdown(ctx context.Context) error {
	var errs []error
	for _, server := range l.servers {
		errs = append(errs, server.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
