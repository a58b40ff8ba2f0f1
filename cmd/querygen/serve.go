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

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/querygen"
)

var (
	serveAddr        string
	serveAPIKey      string
	serveCORSOrigins string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		srv := &http.Server{
			Addr:         serveAddr,
			Handler:      newServer(e, serveAPIKey, serveCORSOrigins),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  120 * time.Second,
		}

		// Graceful shutdown on SIGTERM/SIGINT.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() {
			slog.Info("server starting", "addr", serveAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
			close(errc)
		}()

		select {
		case err := <-errc:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		slog.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", os.Getenv("QUERYGEN_API_KEY"), "Bearer token required on every route but /health")
	serveCmd.Flags().StringVar(&serveCORSOrigins, "cors-origins", os.Getenv("QUERYGEN_CORS_ORIGINS"), "Allowed CORS origins")
}

// newServer wires the routes and the middleware chain.
func newServer(e querygen.Engine, apiKey, corsOrigins string) http.Handler {
	h := newHandler(e)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /resolve", h.handleResolve)
	mux.HandleFunc("POST /generate", h.handleGenerate)
	mux.HandleFunc("GET /vocabulary", h.handleVocabulary)
	mux.HandleFunc("GET /history", h.handleHistory)
	mux.HandleFunc("POST /ontology", h.handleOntology)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> request id -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}
