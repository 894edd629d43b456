package main

import (
	"chat-engine/auth"
	"chat-engine/gateway"
	"chat-engine/moderation"
	"chat-engine/repositories"
	"chat-engine/runtime"
	"chat-engine/runtime/workers"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database cleanup included)
// executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Collaborators & Engine
	charReplacement, err := CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	moderator, err := moderation.NewModerator(charReplacement)
	if err != nil {
		return fmt.Errorf("moderator build failed: %w", err)
	}
	directory := repositories.NewIdentityRepository(db)
	recorder := repositories.NewMessageRepository(db, log, config.LimitMessages)
	engine := runtime.NewOrchestrator(log, directory, recorder, moderator, config.TypingExpiry)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervision (stale-session reaper)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewStaleSessionReaper(engine, config.ReaperInterval, config.StaleThreshold, log))
	go sup.Run(ctx)

	// 6. Websocket endpoint
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	mux := http.NewServeMux()
	mux.Handle("/ws", gateway.NewHandler(ctx, engine, tokens, config.CorsOrigins, config.ConnectionBufferSize, log))

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting chat engine", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
