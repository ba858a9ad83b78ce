package web

import (
	"context"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vbonduro/adpost/internal/draft"
	"github.com/vbonduro/adpost/internal/fields"
	"github.com/vbonduro/adpost/internal/photostore"
	"github.com/vbonduro/adpost/internal/service"
)

// listingReader is the read side of service.ListingService used by the
// listing pages.
type listingReader interface {
	GetListing(ctx context.Context, id int64) (*service.Listing, error)
	RecentListings(ctx context.Context, limit int) ([]*service.Listing, error)
	OpenPhoto(ctx context.Context, adID int64, position int) (io.ReadCloser, string, error)
}

type Server struct {
	drafts    *draft.Store
	listings  listingReader
	registry  *fields.Registry
	previews  photostore.PhotoStore
	templates fs.FS
	mux       *http.ServeMux
	tmplFuncs template.FuncMap
	logger    *slog.Logger
}

func NewServer(
	drafts *draft.Store,
	listings listingReader,
	registry *fields.Registry,
	previews photostore.PhotoStore,
	tmpl fs.FS,
	logger *slog.Logger,
) *Server {
	s := &Server{
		drafts:    drafts,
		listings:  listings,
		registry:  registry,
		previews:  previews,
		templates: tmpl,
		mux:       http.NewServeMux(),
		logger:    logger,
		tmplFuncs: template.FuncMap{
			"inc":   func(i int) int { return i + 1 },
			"bytes": func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/post", http.StatusSeeOther)
	})
	s.mux.HandleFunc("GET /post", s.handlePostPage)
	s.mux.HandleFunc("POST /post/fields/{name}", s.handleFieldInput)
	s.mux.HandleFunc("POST /post/fields/{name}/blur", s.handleFieldBlur)
	s.mux.HandleFunc("POST /post/choices/{name}", s.handleToggleChoice)
	s.mux.HandleFunc("POST /post/photos", s.handleUploadPhotos)
	s.mux.HandleFunc("DELETE /post/photos/{index}", s.handleRemovePhoto)
	s.mux.HandleFunc("GET /post/photos/{index}/preview", s.handlePhotoPreview)
	s.mux.HandleFunc("POST /post/submit", s.handleSubmit)
	s.mux.HandleFunc("POST /post/discard", s.handleDiscard)
	s.mux.HandleFunc("GET /ads", s.handleListAds)
	s.mux.HandleFunc("GET /ads/{id}", s.handleGetAd)
	s.mux.HandleFunc("GET /ads/{id}/photos/{position}", s.handleGetAdPhoto)
}

// securityHeaders sets the browser hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline'; "+
				"img-src 'self' data:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"htmx", r.Header.Get("HX-Request") == "true",
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, data pageView, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "base", data)
}

// renderPartial parses files and executes the named {{define}} block.
func (s *Server) renderPartial(w http.ResponseWriter, name string, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, name, data)
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
