package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sharedlists/api/internal/app"
	"sharedlists/api/internal/config"
	"sharedlists/api/internal/email"
	"sharedlists/api/internal/realtime"
	"sharedlists/api/internal/search"
	"sharedlists/api/internal/session"
	"sharedlists/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// With Redis the change feed fans out across instances and refresh
	// sessions live in Redis; without it everything stays in this process
	// and Postgres.
	var (
		broker   realtime.Broker
		sessions app.SessionStore
		checks   = map[string]app.Pinger{}
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for change feed and sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		broker = realtime.NewRedisBrokerWithClient(redisStore.Client())
		sessions = redisStore
		checks["redis"] = redisStore
	} else {
		log.Printf("Using in-process change feed and PostgreSQL sessions")
		broker = realtime.NewLocalBroker()
	}

	dataStore := store.NewPostgresStore(db, broker)
	if sessions == nil {
		sessions = dataStore
	}

	pgfts := search.NewPgFTS(db)
	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		engine = meiliClient
	}
	searchService := search.NewService(engine, pgfts)
	go searchService.ReindexAllFromPG(context.Background(), pgfts)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("SMTP not configured; invite emails are disabled")
	}

	service := app.New(cfg, dataStore, broker, app.Options{
		Sessions: sessions,
		Search:   searchService,
		Mailer:   mailer,
		Checks:   checks,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Shared Lists API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
