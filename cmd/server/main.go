package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bbmcp/server/internal/mcp"
	"bbmcp/server/internal/middleware"
	"bbmcp/server/internal/modules"
	"bbmcp/server/internal/modules/bitbucket"
	"bbmcp/server/internal/observability"
	"bbmcp/server/pkg/bitbucketapi"
)

func main() {
	// Best-effort .env for local development
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	// Initialize observability (Loki)
	observability.Init()

	config, err := bitbucketapi.ConfigFromEnv()
	if err != nil {
		var confErr *bitbucketapi.ConfigurationError
		if errors.As(err, &confErr) {
			log.Fatalf("Configuration error: %s", confErr.Message)
		}
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client := bitbucketapi.NewClient(config)
	modules.RegisterModule(bitbucket.New(client))
	log.Printf("Registered modules: %v", modules.ListModules())
	log.Printf("Bitbucket base URL: %s", client.BaseURL())

	handler := mcp.NewHandler()

	transport := os.Getenv("MCP_TRANSPORT")
	if transport == "" {
		transport = "stdio"
	}

	switch transport {
	case "stdio":
		runStdio(handler)
	case "http":
		runHTTP(handler)
	default:
		log.Fatalf("Unknown MCP_TRANSPORT %q (expected stdio or http)", transport)
	}
}

// runStdio serves line-delimited JSON-RPC on stdin/stdout. Logging goes to
// stderr so stdout stays clean for protocol frames.
func runStdio(handler *mcp.Handler) {
	log.SetOutput(os.Stderr)
	log.Printf("Starting MCP server on stdio")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mcp.ServeStdio(ctx, handler, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("stdio transport failed: %v", err)
	}
	log.Printf("Server stopped")
}

func runHTTP(handler *mcp.Handler) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8089"
	}

	// Router (Go 1.22+ method-aware patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	// MCP endpoint with recovery + SSE/inline transport middleware
	mux.Handle("/v1/mcp", middleware.Recovery(middleware.Transport(handler)))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: mux,
	}

	go func() {
		log.Printf("Starting MCP server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down gracefully...", sig)

	// Give in-flight requests up to 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Printf("Server stopped")
}
