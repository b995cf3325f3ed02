package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TobiSchelling/newsbridge/internal/collect"
	"github.com/TobiSchelling/newsbridge/internal/database"
	"github.com/TobiSchelling/newsbridge/internal/pipeline"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	recentRuns      = 20

	defaultImportTimeout = 2 * time.Minute
)

// Importer runs imports on behalf of HTTP requests.
type Importer interface {
	ImportFeed(ctx context.Context) (*pipeline.Report, error)
	ImportPage(ctx context.Context) (*pipeline.Report, error)
	ImportURL(ctx context.Context, target string) (*pipeline.Report, error)
}

// Server is the JSON API for browsing articles and triggering imports.
type Server struct {
	store         database.Store
	importer      Importer
	log           *slog.Logger
	router        chi.Router
	importTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithImportTimeout bounds each HTTP-triggered import. Size it to the worst
// case of the longest endpoint list, see fetch.Fetcher.Budget.
func WithImportTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.importTimeout = d
		}
	}
}

// New creates a new Server.
func New(store database.Store, importer Importer, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		store:         store,
		importer:      importer,
		log:           log,
		router:        chi.NewRouter(),
		importTimeout: defaultImportTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/articles", s.handleListArticles)
		r.Get("/articles/{id}", s.handleGetArticle)
		r.Get("/categories", s.handleCategories)
		r.Get("/imports", s.handleImports)

		r.Post("/import/feed", s.handleImportFeed)
		r.Post("/import/page", s.handleImportPage)
		r.Post("/import/extract", s.handleImportExtract)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      s.importTimeout + 15*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type errorResponse struct {
	Error string `json:"error"`
}

type importResponse struct {
	Imported        int    `json:"imported"`
	AlreadyImported bool   `json:"alreadyImported"`
	RunID           string `json:"runId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	articles, err := s.store.ListArticles(r.Context(), database.ArticleQuery{
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("search")),
		Page:     clampInt(q.Get("page"), 1, 1_000_000),
		Limit:    clampInt(q.Get("limit"), defaultPageSize, maxPageSize),
	})
	if err != nil {
		s.log.Error("listing articles", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch articles"})
		return
	}
	if articles == nil {
		articles = []database.Article{}
	}
	writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Article not found"})
		return
	}

	article, err := s.store.GetArticleByID(r.Context(), id)
	if err != nil {
		s.log.Error("fetching article", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch article"})
		return
	}
	if article == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Article not found"})
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.GetCategories(r.Context())
	if err != nil {
		s.log.Error("listing categories", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch categories"})
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListImportRuns(r.Context(), clampInt(r.URL.Query().Get("limit"), recentRuns, maxPageSize))
	if err != nil {
		s.log.Error("listing import runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch import runs"})
		return
	}
	if runs == nil {
		runs = []database.ImportRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleImportFeed(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, s.importer.ImportFeed)
}

func (s *Server) handleImportPage(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, s.importer.ImportPage)
}

func (s *Server) handleImportExtract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "URL is required"})
		return
	}
	target, err := pipeline.ValidateTarget(body.URL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.runImport(w, r, func(ctx context.Context) (*pipeline.Report, error) {
		return s.importer.ImportURL(ctx, target)
	})
}

func (s *Server) runImport(w http.ResponseWriter, r *http.Request, run func(context.Context) (*pipeline.Report, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.importTimeout)
	defer cancel()

	report, err := run(ctx)
	if err != nil {
		writeJSON(w, importStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, importResponse{
		Imported:        report.Persisted,
		AlreadyImported: report.AlreadyImported,
		RunID:           report.RunID,
	})
}

// importStatus maps an import failure to an HTTP status.
func importStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, collect.ErrMissingCredential):
		return http.StatusInternalServerError
	case errors.Is(err, pipeline.ErrImportFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
