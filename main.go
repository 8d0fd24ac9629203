package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sshbridge/sshbridge/internal/config"
	"github.com/sshbridge/sshbridge/internal/conversation"
	"github.com/sshbridge/sshbridge/internal/database"
	"github.com/sshbridge/sshbridge/internal/handlers"
	"github.com/sshbridge/sshbridge/internal/intents"
	"github.com/sshbridge/sshbridge/internal/logging"
	"github.com/sshbridge/sshbridge/internal/monitor"
	"github.com/sshbridge/sshbridge/internal/sshsession"
	"github.com/sshbridge/sshbridge/internal/store"
)

func main() {
	config.Load()

	logging.Init()
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	sessions := sshsession.NewManager(sshsession.Config{
		ConnectTimeout:  config.Cfg.ConnectTimeout(),
		AuthTimeout:     config.Cfg.AuthTimeout(),
		BannerTimeout:   config.Cfg.BannerTimeout(),
		CommandTimeout:  config.Cfg.CommandTimeout(),
		MaxOutputLength: config.Cfg.MaxOutputLength,
		MaxFileSize:     config.Cfg.MaxFileSize,
		SessionTimeout:  config.Cfg.SessionTimeout(),
	}, store.NewSessionStore())

	dialogue := conversation.NewManager(sessions)

	monitors := monitor.NewRegistry()
	if config.Cfg.MonitorTemplates != "" {
		if err := monitors.LoadFile(config.Cfg.MonitorTemplates); err != nil {
			log.Printf("WARNING: monitor templates: %v", err)
		}
	}

	api := &handlers.API{
		Intents:  intents.NewRouter(sessions, dialogue, monitors),
		Sessions: sessions,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Restore persisted sessions in the background; a slow or dead host must
	// not delay serving.
	go sessions.RestoreAll(sigCtx)

	// Periodic idle-session sweep.
	sweeper := cron.New()
	sweepEvery := cron.Every(config.Cfg.SweepInterval())
	sweeper.Schedule(sweepEvery, cron.FuncJob(func() {
		if n := sessions.EvictStale(time.Now()); n > 0 {
			log.Printf("[sweep] evicted %d stale sessions", n)
		}
	}))
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: api.Routes(),
	}

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
