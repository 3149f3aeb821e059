// Package httpapi serves the prompt library over a JSON HTTP API.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hpungsan/promptkeep/internal/config"
	"github.com/hpungsan/promptkeep/internal/library"
	"github.com/hpungsan/promptkeep/internal/logger"
)

// Defaults used when the config leaves the listen address unset.
const (
	DefaultBind = "127.0.0.1"
	DefaultPort = 8787
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// NewServer builds the HTTP server: router, middlewares and routes.
func NewServer(store *library.Store, cfg *config.Config, log logger.Logger, version string) *http.Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}

	h := &Handlers{
		store:   store,
		log:     log,
		version: version,
		now:     time.Now,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(accessLog(log))
	r.Use(securityHeaders)

	h.routes(r)

	bind := cfg.HTTPBind
	if bind == "" {
		bind = DefaultBind
	}
	port := cfg.HTTPPort
	if port == 0 {
		port = DefaultPort
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func (h *Handlers) routes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthz)

	r.Route("/prompts", func(r chi.Router) {
		r.Get("/", h.HandleListPrompts)
		r.Post("/", h.HandleAddPrompt)
		r.Post("/undo", h.HandleUndoDelete)
		r.Post("/reorder", h.HandleReorder)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetPrompt)
			r.Patch("/", h.HandleUpdatePrompt)
			r.Delete("/", h.HandleDeletePrompt)
			r.Post("/copy", h.HandleCopy)
			r.Get("/preview", h.HandlePreview)
			r.Delete("/versions/{index}", h.HandleDeleteVersion)
			r.Post("/versions/{index}/restore", h.HandleRestoreVersion)
		})
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.HandleListCategories)
		r.Post("/", h.HandleAddCategory)
		r.Patch("/{id}", h.HandleUpdateCategory)
		r.Delete("/{id}", h.HandleDeleteCategory)
	})

	r.Get("/export", h.HandleExport)
	r.Post("/import", h.HandleImport)

	r.Get("/theme", h.HandleGetTheme)
	r.Put("/theme", h.HandleSetTheme)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'self'; img-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, log logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Infof("promptkeep API listening on http://%s", srv.Addr)
	if strings.HasPrefix(srv.Addr, "0.0.0.0:") || strings.HasPrefix(srv.Addr, "[::]:") || strings.HasPrefix(srv.Addr, ":") {
		log.Warn("server is binding to all interfaces and may be reachable from the network",
			logger.String("addr", srv.Addr))
	}

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
