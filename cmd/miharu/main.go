package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/ansato/Miharu/common/environment"
	"github.com/ansato/Miharu/common/version"
	"github.com/ansato/Miharu/internal/miharu/app"
	"github.com/ansato/Miharu/internal/miharu/config"
)

func main() {
	configPath := flag.String("config", "miharu.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	setupLogging()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if dsn := environment.StringOr("SENTRY_DSN", ""); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      environment.StringOr("SENTRY_ENVIRONMENT", "production"),
			Release:          version.Version,
			AttachStacktrace: true,
		})
		if err != nil {
			slog.Warn("sentry initialization failed", "err", err)
		} else {
			slog.Info("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	miharu, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Miharu: %v\n", err)
		os.Exit(1)
	}
	defer miharu.Stop()

	if err := miharu.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Miharu: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures the default slog logger. MIHARU_LOG_FORMAT=json
// switches to JSON output, MIHARU_LOG_LEVEL=debug enables debug logging.
func setupLogging() {
	level := slog.LevelInfo
	if environment.StringOr("MIHARU_LOG_LEVEL", "") == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if environment.StringOr("MIHARU_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
