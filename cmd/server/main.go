package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"convoyhub/config"
	"convoyhub/internal/database"
	"convoyhub/internal/logger"
	"convoyhub/internal/router"
	"convoyhub/internal/ws"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal("database", "error", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("migrate", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	bus, err := ws.NewBus(cfg.Redis, hub, log)
	if err != nil {
		log.Fatal("event bus", "error", err)
	}
	if err := bus.Start(ctx); err != nil {
		log.Fatal("event bus start", "error", err)
	}
	defer bus.Close()

	engine := router.Setup(cfg, db, hub, bus, log)
	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     engine,
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		log.Info("server listening", "port", cfg.Server.Port, "env", cfg.Server.Env, "redis_bus", cfg.Redis.Addr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
