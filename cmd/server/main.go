package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomliptrot/handwriting-app/internal/config"
	"github.com/tomliptrot/handwriting-app/internal/domain/code"
	"github.com/tomliptrot/handwriting-app/internal/domain/session"
	"github.com/tomliptrot/handwriting-app/internal/domain/upload"
	"github.com/tomliptrot/handwriting-app/internal/ledger"
	"github.com/tomliptrot/handwriting-app/internal/notify"
	"github.com/tomliptrot/handwriting-app/internal/progress"
	"github.com/tomliptrot/handwriting-app/internal/sqlite"
	"github.com/tomliptrot/handwriting-app/internal/storage"
	"github.com/tomliptrot/handwriting-app/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	recorder := ledger.NewRecorder(
		sqlite.NewWorkerRepository(db),
		sqlite.NewSessionRepository(db),
		sqlite.NewCodeRepository(db),
		logger,
	)

	progressStore, err := progress.NewStore(cfg.Storage.ProgressDir, logger)
	if err != nil {
		logger.Error("failed to open progress store", "error", err)
		os.Exit(1)
	}
	if err := progressStore.Sweep(); err != nil {
		logger.Warn("progress sweep failed", "error", err)
	}

	objectStore, err := storage.NewFSStore(cfg.Storage.Root)
	if err != nil {
		logger.Error("failed to open object store", "error", err)
		os.Exit(1)
	}

	var writer storage.Writer = objectStore
	if cfg.Storage.Mode == config.StorageModeFunction {
		writer = storage.NewFunctionStore(cfg.Storage.FunctionURL)
	}
	uploader := upload.New(writer, cfg.Storage.Prefix, logger)

	notifier := notify.New(cfg.Email.FunctionURL, cfg.Email.Enabled, logger)
	codes := code.NewGenerator(cfg.Collection.CodeLetters, cfg.Collection.CodeDigits)

	settings := session.Settings{
		TargetImages:    cfg.Collection.TargetImages,
		MaxFileSize:     cfg.Collection.MaxFileSize,
		AllowedTypes:    cfg.Collection.AllowedTypes,
		WorkerIDPattern: cfg.WorkerIDRegexp(),
		AllowSkipping:   cfg.Features.AllowSkipping,
		TrackTiming:     cfg.Features.TrackTiming,
	}
	newMachine := func() *session.Machine {
		return session.NewMachine(settings, codes, progressStore, uploader, recorder, notifier, logger)
	}

	router := transport.NewServer(newMachine, progressStore, cfg.Collection.TargetImages, cfg.Collection.MaxFileSize, logger)
	mountFunctions(router, objectStore, cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", addr, "storage_mode", cfg.Storage.Mode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

// mountFunctions exposes the intermediary endpoints that stand in for
// the hosted upload and email functions. In function mode the upload
// pipeline posts to these over HTTP like it would to the real thing.
func mountFunctions(router *chi.Mux, store storage.ObjectStore, cfg config.Config, logger *slog.Logger) {
	router.Method(http.MethodPost, "/functions/upload-image",
		storage.NewFunctionHandler(store, cfg.Storage.Prefix, logger))
	router.Method(http.MethodPost, "/functions/send-completion-email",
		notify.NewHandler(&notify.LogMailer{Logger: logger}, cfg.Email.AdminEmail, cfg.Email.Domain, logger))
}

func ensureDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
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
