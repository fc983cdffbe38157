package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/livecaster/liveasr/internal/config"
	"github.com/livecaster/liveasr/internal/server"
	"github.com/livecaster/liveasr/internal/session"
	"github.com/livecaster/liveasr/internal/translate"
	"github.com/livecaster/liveasr/pkg/transcriber"
)

var (
	Addr            string
	TranscriberType string
	WhisperModel    string
)

func init() {
	flag.StringVar(&Addr, "addr", "", "Listen address (overrides LIVEASR_ADDR)")
	flag.StringVar(&TranscriberType, "transcriber", "faster-whisper", "Transcriber type: faster-whisper or mock")
	flag.StringVar(&WhisperModel, "whisper-model", "", "faster-whisper model name (default large-v3)")
	flag.Parse()

	// Load from environment
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("Error loading .env file, using environment variables")
	}

	if envTranscriber := os.Getenv("TRANSCRIBER_TYPE"); envTranscriber != "" {
		TranscriberType = envTranscriber
	}
	if envModel := os.Getenv("WHISPER_MODEL"); envModel != "" {
		WhisperModel = envModel
	}
}

func main() {
	// Configure logrus
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Set log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	switch strings.ToLower(logLevel) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	settings := config.FromEnv()
	if Addr != "" {
		settings.Addr = Addr
	}
	if (settings.CertFile == "") != (settings.KeyFile == "") {
		logrus.Fatal("TLS requires both LIVEASR_SSL_CERTFILE and LIVEASR_SSL_KEYFILE")
	}

	// Set up signal handling with context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	if err := os.MkdirAll(settings.UploadsDir, 0o755); err != nil {
		logrus.WithError(err).Fatal("Failed to create uploads directory")
	}

	// Create transcriber based on configuration
	var trans transcriber.Transcriber
	var err error
	switch strings.ToLower(TranscriberType) {
	case "faster-whisper", "whisper":
		trans, err = transcriber.NewFasterWhisper(WhisperModel, settings.PythonPath)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize faster-whisper transcriber")
		}
	case "mock":
		fallthrough
	default:
		trans = &transcriber.Mock{}
		logrus.Info("Using mock transcriber")
	}
	defer func() {
		if err := trans.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close transcriber")
		}
	}()

	translators := translate.NewRegistryFromEnv()

	registry := session.NewRegistry(session.Deps{
		Transcriber: trans,
		Translators: translators,
		Tuning:      session.NewTuningStore(settings.UploadsDir),
		Settings:    settings,
	})

	srv := &http.Server{
		Addr:              settings.Addr,
		Handler:           server.New(registry, settings).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Server shutdown failed")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"addr": settings.Addr,
		"tls":  settings.CertFile != "",
	}).Info("Server listening")

	if settings.CertFile != "" && settings.KeyFile != "" {
		err = srv.ListenAndServeTLS(settings.CertFile, settings.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("Server error")
	}
}
