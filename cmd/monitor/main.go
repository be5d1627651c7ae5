// Package main provides the entry point for the CNPJ ETL monitor.
//
// By default it opens the terminal console. With -serve it runs headless and
// exposes the reconciled view over HTTP instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/console"
	"github.com/narvanalabs/cnpj-monitor/internal/display"
	"github.com/narvanalabs/cnpj-monitor/internal/monitor"
	"github.com/narvanalabs/cnpj-monitor/internal/server"
	"github.com/narvanalabs/cnpj-monitor/internal/shutdown"
	"github.com/narvanalabs/cnpj-monitor/internal/stream"
	"github.com/narvanalabs/cnpj-monitor/pkg/config"
	"github.com/narvanalabs/cnpj-monitor/pkg/logger"
	"github.com/narvanalabs/cnpj-monitor/web/api"
	"github.com/narvanalabs/cnpj-monitor/web/health"
)

func main() {
	serve := flag.Bool("serve", false, "run headless and serve the view over HTTP")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Println(health.Version)
		return
	}

	os.Exit(run(*serve))
}

func run(serve bool) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		return 1
	}

	// The console owns the terminal, so its logs go to a file.
	logOut, logCloser, err := openLogOutput(cfg, serve)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open log file:", err)
		return 1
	}
	log := logger.NewWithWriter(logOut, logger.ParseLevel(cfg.LogLevel), cfg.LogJSON || serve)
	slog.SetDefault(log.Logger)

	streamURL, err := stream.ResolveEndpoint(cfg.IsDevelopment(), cfg.APIURL, cfg.Stream.DevURL, cfg.Stream.Path)
	if err != nil {
		log.Error("failed to resolve stream endpoint", "error", err)
		return 1
	}

	session, err := loadSession(cfg.Token)
	if err != nil {
		log.Error("cannot start monitor", "error", err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.NewClient(cfg.APIURL).WithToken(cfg.Token)
	mon := monitor.New(client, monitor.Options{
		StreamURL:       streamURL,
		Token:           cfg.Token,
		ReconnectDelay:  cfg.Stream.ReconnectDelay,
		ReconnectJitter: cfg.Stream.ReconnectJitter,
		UsageInterval:   cfg.Usage.Interval,
		Session:         session,
		Logger:          log.Logger,
	})
	ctx = identifyOperator(ctx, mon, cfg.Token, log)

	// Registered in reverse shutdown order: the log file closes last.
	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("log-output", logCloser))
	coordinator.Register(mon)

	log.WithContext(ctx).Info("starting monitor",
		"environment", cfg.Environment,
		"api_url", cfg.APIURL,
		"stream_url", streamURL,
		"mode", modeName(serve),
	)

	if err := mon.Run(ctx); err != nil {
		log.Error("failed to start monitor", "error", err)
		return 1
	}

	formatter := display.NewFormatter(cfg.Locale)

	if serve {
		checker := health.NewChecker(client.Ping, mon.StreamStatus, health.Version)
		srv := server.NewServer(mon, formatter, checker, log.WithComponent("server").Logger)
		httpServer := srv.HTTPServer(cfg.HTTPAddr)
		coordinator.Register(shutdown.NewHTTPServerComponent("view-server", httpServer))

		go func() {
			log.Info("serving monitor view", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("view server failed", "error", err)
				cancel()
			}
		}()

		coordinator.WaitForSignal(ctx)
		return coordinator.ExitCode()
	}

	go func() {
		coordinator.WaitForSignal(ctx)
		cancel()
	}()
	if err := console.Run(ctx, mon, formatter, log.WithComponent("console").Logger); err != nil {
		log.Error("console exited with error", "error", err)
	}
	cancel()
	coordinator.Wait()
	return coordinator.ExitCode()
}

// openLogOutput returns where logs go: stdout when headless, otherwise the
// configured log file or one under the user cache directory.
func openLogOutput(cfg *config.Config, serve bool) (io.Writer, io.Closer, error) {
	if serve && cfg.LogFile == "" {
		return os.Stdout, nopCloser{}, nil
	}

	path := cfg.LogFile
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		path = filepath.Join(dir, "cnpj-monitor", "monitor.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

// loadSession inspects the bearer token. No token means no expiry gating; an
// expired one is refused up front.
func loadSession(token string) (*api.Session, error) {
	if token == "" {
		return nil, nil
	}
	session, err := api.ParseSession(token)
	if err != nil {
		if errors.Is(err, api.ErrMalformedToken) {
			// Opaque tokens are still valid bearer tokens for the backend.
			return nil, nil
		}
		return nil, err
	}
	if err := session.Check(time.Now()); err != nil {
		return nil, fmt.Errorf("MONITOR_TOKEN: %w", err)
	}
	return session, nil
}

// identifyOperator primes the monitor's operator cache and attaches the
// operator to ctx for log correlation. Failure is not fatal; the backend may
// not expose the endpoint to this token.
func identifyOperator(ctx context.Context, mon *monitor.Monitor, token string, log *logger.Logger) context.Context {
	if token == "" {
		return ctx
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	user, err := mon.Operator(lookupCtx)
	if err != nil {
		log.WithError(err).Warn("could not identify operator")
		return ctx
	}
	if !user.Admin {
		log.Warn("operator is not an admin, job commands will be rejected", "email", user.Email)
	}
	return logger.ContextWithOperator(ctx, user.Email)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func modeName(serve bool) string {
	if serve {
		return "headless"
	}
	return "console"
}
