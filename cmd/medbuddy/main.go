package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medbuddy/internal/config"
	"medbuddy/internal/db"
	"medbuddy/internal/events"
	httpx "medbuddy/internal/http"
	"medbuddy/internal/jobs"
	"medbuddy/internal/logger"
	"medbuddy/internal/reminder"
	"medbuddy/internal/vapi"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat, "medbuddy")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		lg.Fatal("connect database", zap.Error(err))
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		lg.Fatal("migrate database", zap.Error(err))
	}

	store := &reminder.Store{DB: gdb}
	hub := events.NewHub(32, lg.Named("hub"))
	calls := vapi.New(vapi.Options{
		BaseURL:       cfg.VAPI.BaseURL,
		APIKey:        cfg.VAPI.APIKey,
		AssistantID:   cfg.VAPI.AssistantID,
		PhoneNumberID: cfg.VAPI.PhoneNumberID,
		UserPhone:     cfg.VAPI.UserPhone,
		Timeout:       cfg.VAPI.Timeout,
	}, lg.Named("vapi"))
	if cfg.VAPI.APIKey == "" {
		lg.Warn("VAPI_API_KEY not set, reminder calls will fail")
	}

	sched := jobs.New(store, calls, hub, lg.Named("scheduler"))
	restored, err := sched.Restore(context.Background())
	if err != nil {
		lg.Error("restore scheduled reminders", zap.Error(err))
	}
	lg.Info("scheduled reminders restored", zap.Int("count", restored))

	r := httpx.NewRouter(cfg, httpx.Deps{
		Store: store,
		Sched: sched,
		Hub:   hub,
		Calls: calls,
		Log:   lg.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lg.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	sched.Stop()
	lg.Info("stopped")
}
