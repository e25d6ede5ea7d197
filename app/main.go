package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/lysyi3m/scripta/app/api"
	"github.com/lysyi3m/scripta/app/archive"
	"github.com/lysyi3m/scripta/app/auth"
	"github.com/lysyi3m/scripta/app/cfg"
	"github.com/lysyi3m/scripta/app/database"
	"github.com/lysyi3m/scripta/app/firestore"
	"github.com/lysyi3m/scripta/app/inspiration"
	"github.com/lysyi3m/scripta/app/notify"
	"github.com/lysyi3m/scripta/app/oracle"
	"github.com/lysyi3m/scripta/app/story"
	"github.com/lysyi3m/scripta/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Scripta stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	ctx := context.Background()

	slog.Info("Starting Scripta server",
		"version", appCfg.Version,
		"timezone", appCfg.Timezone,
		"store", appCfg.Store,
		"oracle", appCfg.Oracle)

	var firebaseApp *firebase.App
	if appCfg.NeedsFirebase() {
		app, err := auth.NewFirebaseApp(ctx, appCfg.FirebaseProject, appCfg.FirebaseCredentials)
		if err != nil {
			return err
		}
		firebaseApp = app
	}

	store, closeStore, err := openStore(ctx, appCfg, firebaseApp)
	if err != nil {
		return err
	}
	defer closeStore()

	prompts, err := story.LoadPrompts(appCfg.PromptsFile)
	if err != nil {
		return err
	}

	textOracle, closeOracle, err := oracle.New(ctx, oracle.Config{
		Provider:     appCfg.Oracle,
		GeminiAPIKey: appCfg.GeminiAPIKey,
		GeminiModel:  appCfg.GeminiModel,
		OpenAIAPIKey: appCfg.OpenAIAPIKey,
		OpenAIModel:  appCfg.OpenAIModel,
		OpenAIURL:    appCfg.OpenAIBaseURL,
		Timeout:      appCfg.OracleTimeout,
	})
	if err != nil {
		return err
	}
	defer closeOracle()

	if textOracle == nil {
		slog.Warn("Text oracle disabled: stories will not be created, continued or summarized")
	}
	if appCfg.ScreeningMaySkip() {
		slog.Warn("Screening policy is fail-open: contributions are accepted unscreened whenever the text oracle is unavailable",
			"policy", string(appCfg.ScreeningPolicy),
			"oracle_configured", textOracle != nil)
	}

	var authenticator api.Authenticator
	if firebaseApp != nil {
		fb, err := auth.NewFirebase(ctx, firebaseApp)
		if err != nil {
			return err
		}
		authenticator = fb
	} else {
		slog.Warn("Firebase not configured: every contribution will be rejected as unauthenticated")
	}

	notifiers, err := buildNotifiers(ctx, appCfg, firebaseApp)
	if err != nil {
		return err
	}

	var coverArtist story.CoverArtist = oracle.Placeholder(appCfg.CoverPlaceholderURL)
	var coverDir string
	if appCfg.CoverImages {
		covers, err := oracle.NewCoverDir(appCfg.CoverDir, appCfg.BaseUrl)
		if err != nil {
			return err
		}
		coverDir = appCfg.CoverDir
		coverArtist = oracle.NewImageArtist(appCfg.OpenAIAPIKey, appCfg.OpenAIBaseURL, prompts, covers, appCfg.CoverPlaceholderURL)
		slog.Info("Cover images enabled", "dir", coverDir)
	}

	filter := story.NewFilter()
	pipeline := story.NewPipeline(store, filter, textOracle, prompts, appCfg.ScreeningPolicy)
	ghostwriter := story.NewGhostwriter(store, textOracle, filter, prompts)
	lifecycle := story.NewLifecycle(story.LifecycleConfig{
		Store:       store,
		Oracle:      textOracle,
		Ghostwriter: ghostwriter,
		Inspiration: inspiration.New(&http.Client{}, inspiration.Config{
			FeedURL:   appCfg.InspirationFeedURL,
			QuoteURL:  appCfg.InspirationQuoteURL,
			UserAgent: appCfg.UserAgent,
		}),
		CoverArtist:   coverArtist,
		Notifiers:     notifiers,
		Prompts:       prompts,
		IdleThreshold: appCfg.IdleThreshold,
	})

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount)
	scheduler := tasks.NewScheduler(lifecycle, store, tasks.Config{
		Location:          appCfg.Location,
		CreationTime:      appCfg.CreationTime,
		ClosureTime:       appCfg.ClosureTime,
		RecapTime:         appCfg.RecapTime,
		IdleCheckInterval: appCfg.IdleCheckInterval,
		Interval:          appCfg.SchedulerInterval,
		WorkerCount:       appCfg.WorkerCount,
	})
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(api.HandlerConfig{
		Store:     store,
		Submitter: pipeline,
		Validator: filter,
		Auth:      authenticator,
		Generator: archive.NewGenerator(appCfg.BaseUrl, appCfg.Version, appCfg.Location),
		Scheduler: scheduler,
		Location:  appCfg.Location,
	})
	server := api.NewServer(apiHandler, api.ServerConfig{
		APIAccessKey: appCfg.APIAccessKey,
		CORSOrigins:  appCfg.CORSOrigins,
		CoverDir:     coverDir,
		Version:      appCfg.Version,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "base_url", appCfg.BaseUrl)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Scripta server started successfully")

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler and store are closed via defer
	return runErr
}

func openStore(ctx context.Context, appCfg *cfg.Cfg, app *firebase.App) (story.Store, func(), error) {
	switch appCfg.Store {
	case cfg.StoreFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Firestore: %w", err)
		}
		slog.Info("Connected to Firestore", "project", appCfg.FirebaseProject)
		return firestore.New(client), func() { client.Close() }, nil

	default:
		db, err := database.NewConnection(appCfg.DBPath)
		if err != nil {
			return nil, nil, err
		}

		version, dirty, err := database.RunMigrations(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("Connected to database", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)
		return database.NewStore(db), func() { db.Close() }, nil
	}
}

func buildNotifiers(ctx context.Context, appCfg *cfg.Cfg, app *firebase.App) ([]story.Notifier, error) {
	var notifiers []story.Notifier

	if appCfg.FCMTopic != "" {
		fcm, err := notify.NewFCM(ctx, app, appCfg.FCMTopic, appCfg.BaseUrl)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, fcm)
	}
	if appCfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(appCfg.SlackWebhookURL, appCfg.BaseUrl))
	}

	names := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		names = append(names, n.Name())
	}
	slog.Info("Recap notifiers configured", "notifiers", names)

	return notifiers, nil
}
