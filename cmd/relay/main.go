package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/relay"
	"github.com/BioHazard786/Warpcall/internal/server"
)

func main() {
	logging.Init(slog.LevelInfo)
	logger := logging.For("relay")
	cfg := config.LoadRelay()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The hub's event loop owns all room state.
	hub := relay.NewHub(logger)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.NewRouter(hub, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting signaling relay", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}
