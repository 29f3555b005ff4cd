// Command testworker is the warm test-runner worker: it reads
// newline-delimited JSON test-execution requests on stdin and writes
// newline-delimited JSON results on stdout, one per request, forever
// until stdin closes or it receives SIGTERM.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"testworker/pkg/core"
	"testworker/pkg/jsvm"
	"testworker/pkg/runner"
	"testworker/pkg/shim"
	"testworker/pkg/stdioframe"
	"testworker/pkg/workspace"
)

// Config holds the worker's startup configuration.
type Config struct {
	Prefix      string
	IdleMS      int
	ForceIdleMS int
	LogFormat   string
	LogLevel    slog.Level
}

func main() {
	cfg := parseConfig()
	setupLogger(cfg)

	instanceID := uuid.NewString()
	slog.SetDefault(slog.Default().With("instance", instanceID))

	slog.Info("starting testworker",
		"prefix", cfg.Prefix,
		"idle_ms", cfg.IdleMS,
		"force_idle_ms", cfg.ForceIdleMS,
	)

	shimRegistry, err := shim.NewRegistry(cfg.Prefix)
	if err != nil {
		slog.Error("failed to materialize shim module", "error", err)
		os.Exit(1)
	}
	slog.Debug("shim module materialized", "path", shimRegistry.Path())

	wsManager := workspace.NewManager(cfg.Prefix)
	wsManager.InstallExitHooks(nil)

	rt := jsvm.New()
	executor := runner.New(rt, runner.Deadlines{NormalMS: cfg.IdleMS, ForceMS: cfg.ForceIdleMS})

	guard := stdioframe.NewGuard(os.Stdout)
	framer := stdioframe.New(os.Stdin, guard.Claim())

	worker := core.New(framer, wsManager, executor)
	if err := worker.Run(); err != nil {
		slog.Error("worker loop exited with error", "error", err)
		os.Exit(1)
	}

	slog.Info("end of input, shutting down cleanly")
}

func parseConfig() Config {
	cfg := Config{}

	flag.StringVar(&cfg.Prefix, "prefix", envOr("RUNNER_PREFIX", "howthtest"), "Fixed literal naming this runner's temp files (env: RUNNER_PREFIX)")
	flag.IntVar(&cfg.IdleMS, "idle-timeout-ms", envIntOr("RUNNER_IDLE_MS", 5000), "Idle deadline in ms when force_exit is not set (env: RUNNER_IDLE_MS)")
	flag.IntVar(&cfg.ForceIdleMS, "force-idle-ms", envIntOr("RUNNER_FORCE_IDLE_MS", 500), "Idle deadline in ms when force_exit is set (env: RUNNER_FORCE_IDLE_MS)")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: 'text' or 'json'")
	logLevel := flag.String("log-level", "info", "Log level: 'debug', 'info', 'warn', 'error'")
	flag.Parse()

	cfg.LogLevel = levelFromString(*logLevel)
	return cfg
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(cfg Config) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s=%q, using default %d\n", key, v, fallback)
		return fallback
	}
	return n
}
