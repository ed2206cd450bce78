package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"github.com/hpungsan/tessera/internal/config"
	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/editor"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the services the web UI runs on.
type Deps struct {
	Manager *editor.Manager
	Source  content.Source
	Config  *config.Config
}

// NewServer creates and configures the HTTP server for the site and the layout editor.
func NewServer(deps Deps, version, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewHandler(deps, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler builds the routed handler with middleware.
func NewHandler(deps Deps, version string) http.Handler {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatalf("failed to create template sub-FS: %v", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	h := &Handlers{
		manager:  deps.Manager,
		source:   deps.Source,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version),
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /landing/{slug}", h.HandleLanding)
	mux.HandleFunc("GET /editor/{entryID}", h.HandleEditor)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/entries/{entryID}/layout", h.HandleLayout)
	api.HandleFunc("POST /api/entries/{entryID}/layout/components", h.HandleAddComponent)
	api.HandleFunc("POST /api/entries/{entryID}/layout/reorder", h.HandleReorder)
	api.HandleFunc("POST /api/entries/{entryID}/layout/undo", h.HandleUndo)
	api.HandleFunc("POST /api/entries/{entryID}/layout/redo", h.HandleRedo)
	mux.Handle("/api/", withCORS(api, cfg.CORSOrigins))

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	// Unmatched paths get the site's 404 page
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.renderer.renderError(w, r, notFound(r.URL.Path))
	})

	return handlers.LoggingHandler(os.Stderr, securityHeaders(mux))
}

// withCORS allows the configured origins to call the editor API. With no
// origins configured the API is same-origin only.
func withCORS(next http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return next
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Accept", "Authorization"}),
	)(next)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Block images come from the CMS asset host.
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' https: data:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
// onShutdown runs after the server stops accepting requests; it is where
// pending layout saves are flushed.
func Run(srv *http.Server, onShutdown func(context.Context) error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("Tessera running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(ctx)
		if onShutdown != nil {
			if flushErr := onShutdown(ctx); flushErr != nil {
				log.Printf("flush on shutdown: %v", flushErr)
			}
		}
		return err
	}
}
