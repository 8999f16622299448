/*
Package main is the entry point for the HubChat relay server.

It is responsible for loading configuration, initializing the global logging
system, opening the conversation store, starting the chat Manager, setting up
the HTTP server, and gracefully handling operating system interrupt signals
(SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hubchat/internal/app/chat"
	"hubchat/internal/app/db"
	"hubchat/internal/app/store"
	"hubchat/internal/configs"
	"hubchat/internal/handler"
	"hubchat/internal/pkg/auth/jwt"
	"hubchat/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("persistent_store", cfg.DatabaseDSN != "").
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the conversation store: Postgres when configured, otherwise the
	// in-memory store (development only; configs enforces this).
	var conversationStore store.ConversationStore
	if cfg.DatabaseDSN != "" {
		pool, err := db.NewPool(cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to connect to conversation store")
		}
		conversationStore = store.NewPostgres(pool)
	} else {
		logx.Warn("DATABASE_URL not set; using in-memory conversation store (conversations will not survive restarts)")
		conversationStore = store.NewMemory()
	}
	defer conversationStore.Close()

	// Initialize the messaging core
	manager := chat.NewManager()
	pipeline := chat.NewPipeline(conversationStore, manager)

	deps := &handler.AppDeps{
		Manager:  manager,
		Pipeline: pipeline,
		Store:    conversationStore,
		Verifier: jwt.NewVerifier(cfg.JWTSecret),
		Config:   cfg,
	}

	// Setup HTTP server and routes
	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("HubChat Relay starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	manager.Shutdown()

	logx.Info("Server gracefully stopped.")
}
