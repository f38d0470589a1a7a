package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"voxjob/internal/config"
	"voxjob/internal/logging"
	"voxjob/internal/mockbackend"
)

func main() {
	addr := flag.String("addr", ":8000", "Listen address")
	duration := flag.Duration("duration", 8*time.Second, "Time for a task to complete")
	fail := flag.String("fail", "", "Comma separated providers whose tasks fail")
	anonymous := flag.Bool("allow-anonymous", false, "Accept requests without identity headers")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger := logging.NewWriter(os.Stderr, config.LoggingConfig{Level: *logLevel})
	if logging.ParseLevel(*logLevel) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	failProviders := lo.Compact(lo.Map(strings.Split(*fail, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))

	backend := mockbackend.New(mockbackend.Config{
		Duration:       *duration,
		FailProviders:  failProviders,
		AllowAnonymous: *anonymous,
	}, logger)

	server := &http.Server{
		Addr:              *addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("mock backend listening",
			slog.String("addr", *addr),
			slog.Duration("duration", *duration),
			slog.Any("fail_providers", failProviders),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "mockbackend: %v\n", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", slog.String("error", err.Error()))
	}
}
