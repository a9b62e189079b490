package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/apssouza22/keyfetch/internal/control"
	"github.com/apssouza22/keyfetch/internal/core/config"
	"github.com/apssouza22/keyfetch/internal/core/domain"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	fetch := flag.String("fetch", "", "Fetch a single key by fingerprint and exit")
	flag.Parse()

	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The default config path may simply not exist; fall back to defaults.
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(log)

	app, err := control.New(cfg, log)
	if err != nil {
		log.Error("Failed to initialize keyfetch", "error", err)
		os.Exit(1)
	}

	if *fetch != "" {
		fetchOnce(app, *fetch, log)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start keyfetch", "error", err)
		os.Exit(1)
	}

	sig := <-sigChan
	log.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("keyfetch stopped gracefully")
}

// fetchOnce runs a single lookup and prints the armored key to stdout.
func fetchOnce(app *control.App, raw string, log *slog.Logger) {
	fp, err := domain.ParseFingerprint(raw)
	if err != nil {
		log.Error("Invalid fingerprint", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	key, err := app.Lookup(ctx, fp)
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
		log.Info("Key not found on any keyserver", "fingerprint", fp)
		os.Exit(2)
	case err != nil:
		log.Error("Lookup failed", "fingerprint", fp, "error", err)
		os.Exit(1)
	}
	fmt.Println(key.Armored)
}
