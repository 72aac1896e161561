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

	"github.com/gin-gonic/gin"

	"uptimedock/config"
	"uptimedock/db"
	"uptimedock/handlers"
	"uptimedock/middleware"
	"uptimedock/models"
	"uptimedock/services"
)

func openStore(ctx context.Context, cfg config.Config) (services.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
		slog.Info("database schema verified")
		return store, func() { store.Close() }, nil
	default:
		store := db.NewMemoryStore()
		store.AddUser(models.User{ID: cfg.SystemUserID, Email: cfg.AlertEmail, FirstName: "System"})
		slog.Warn("using in-memory store, data is lost on exit")
		return store, func() {}, nil
	}
}

func newEngine(cfg config.Config, store services.Store) *services.Engine {
	var notifier services.Notifier
	if cfg.Features.SlackEnabled {
		notifier = services.NewSlackNotifier(store, cfg.SlackWebhookURL)
	}
	var mailer services.EmailSender
	if cfg.Features.EmailEnabled {
		mailer = &services.SendGridMailer{
			APIKey:   cfg.SendGridAPIKey,
			From:     cfg.AlertEmail,
			FromName: cfg.AlertFromName,
		}
	}

	return &services.Engine{
		Store:           store,
		Prober:          services.NewProber(cfg.ProbeTimeout, cfg.ProbeAttempts, cfg.ProbeBackoff),
		Certificates:    services.NewTLSFetcher(cfg.TLSTimeout),
		Domains:         services.NewWhoisClient(cfg.WhoisServer, cfg.WhoisReferrals, cfg.WhoisTimeout),
		Dispatcher:      services.NewDispatcher(notifier, mailer),
		ReAlertInterval: cfg.ReAlertInterval,
	}
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	slog.Info("booting uptimedock",
		"store", cfg.Store,
		"auth", cfg.Features.AuthEnabled,
		"email", cfg.Features.EmailEnabled,
		"slack", cfg.Features.SlackEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		return 1
	}
	defer closeStore()

	engine := newEngine(cfg, store)
	sweeper := &services.Sweeper{
		Engine:         engine,
		Concurrency:    cfg.SweepConcurrency,
		RefreshRecords: cfg.RefreshRecords,
	}

	if cfg.Once {
		err := sweeper.RunOnce(ctx)
		engine.Wait()
		if err != nil {
			slog.Error("sweep failed", "error", err)
			return 1
		}
		return 0
	}

	scheduler := services.NewScheduler(logger)
	for _, t := range sweeper.Tasks(services.ScheduleSpecs{
		Availability: cfg.AvailabilitySchedule,
		SSL:          cfg.SSLSchedule,
		Domain:       cfg.DomainSchedule,
	}) {
		if err := scheduler.Add(t); err != nil {
			slog.Error("failed to schedule task", "error", err)
			return 2
		}
	}
	scheduler.Start()

	r := gin.New()
	r.Use(gin.Recovery())

	auth := middleware.Auth{
		Enabled:      cfg.Features.AuthEnabled,
		Secret:       []byte(cfg.JWTSecret),
		SystemUserID: cfg.SystemUserID,
	}
	h := &handlers.Handler{Engine: engine}
	h.Register(r, auth.Required())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		slog.Error("scheduler shutdown failed", "error", err)
	}
	engine.Wait()
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
