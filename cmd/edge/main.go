// Package main is the entry point for the VibeMUSE edge server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/vyrodovalexey/vibemuse-edge/internal/config"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
	"github.com/vyrodovalexey/vibemuse-edge/internal/server"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	if err := loadEnvFile(flags.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlagOverrides(cfg, flags)

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		fatalWithSync(logger, "edge server failed", observability.Error(err))
	}
}

// parseFlags parses command line flags.
func parseFlags(args []string) (cliFlags, error) {
	var flags cliFlags

	fs := pflag.NewFlagSet("vibemuse-edge", pflag.ContinueOnError)
	fs.StringVarP(&flags.configPath, "config", "c", os.Getenv("EDGE_CONFIG_PATH"),
		"Path to YAML configuration file")
	fs.StringVar(&flags.envFile, "env-file", ".env", "Path to a .env file loaded before configuration")
	fs.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&flags.logFormat, "log-format", "", "Log format (json, console)")
	fs.BoolVarP(&flags.showVersion, "version", "v", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "vibemuse-edge version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// loadEnvFile loads path into the environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func applyFlagOverrides(cfg *config.Config, flags cliFlags) {
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	if cfg.Version == "" || cfg.Version == "dev" {
		cfg.Version = version
	}
}

// initLogger initializes the logger.
func initLogger(cfg *config.Config) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// run resolves secrets, validates the configuration and serves until a
// shutdown signal arrives.
func run(cfg *config.Config, logger observability.Logger) error {
	logger.Info("starting vibemuse-edge",
		observability.String("version", cfg.Version),
		observability.String("environment", cfg.Environment),
	)

	ctx := context.Background()
	if err := resolveJWTSecret(ctx, cfg, logger); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	srv, err := server.New(cfg,
		server.WithLogger(logger),
		server.WithMetrics(observability.NewMetrics("")),
		server.WithTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	}

	return shutdown(srv, tracer, cfg, logger)
}

func shutdown(srv *server.Server, tracer *observability.Tracer, cfg *config.Config, logger observability.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
		errs = append(errs, err)
	}
	if err := tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		logger.Info("vibemuse-edge stopped")
	}
	return errors.Join(errs...)
}

// fatalWithSync logs a fatal message after flushing buffered entries.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	_ = logger.Sync()
	logger.Fatal(msg, fields...)
}
