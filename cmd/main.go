package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"market-chat/api"
	"market-chat/auth"
	"market-chat/hub"
	"market-chat/moderation"
	"market-chat/observability"
	"market-chat/repositories"
	"market-chat/search"
	"market-chat/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every deferred cleanup executes before the
// process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := newLogger(config.LogLevel)

	// 2. Storage (BadgerDB) & Search Index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.Open(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Moderation (optional, driven by the configured blocklist)
	var moderator *moderation.Moderator
	if terms := config.BlockedTermsList(); len(terms) > 0 {
		maskChar, err := CharacterRune(config.CharReplacement)
		if err != nil {
			return err
		}
		m, err := moderation.NewModerator(terms, maskChar)
		if err != nil {
			return fmt.Errorf("moderator setup failed: %w", err)
		}
		moderator = &m
		log.Info("Moderation enabled", "terms", len(terms))
	}

	// 4. Core wiring
	metrics := observability.NewMetrics()
	registry := hub.NewRegistry(log, metrics, config.ConnectionBufferSize)
	userRepository := repositories.NewUserRepository(db)

	service := services.NewChatService(
		repositories.NewConversationRepository(db, log),
		repositories.NewMessageRepository(db, log),
		userRepository,
		registry,
		index,
		moderator,
		metrics,
		log,
	)
	verifier := auth.NewTokenVerifier([]byte(config.JWTSecret), userRepository)
	router := api.NewRouter(api.NewChatHandler(service, log), verifier, registry, metrics, log)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. HTTP Server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Program stopped cleanly")

	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
