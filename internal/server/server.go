package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/surveylens/internal/aggregate"
	"github.com/TobiSchelling/surveylens/internal/database"
	"github.com/TobiSchelling/surveylens/internal/export"
	"github.com/TobiSchelling/surveylens/internal/session"
	"github.com/TobiSchelling/surveylens/internal/summarize"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var (
	md        = goldmark.New()
	sanitizer = bluemonday.UGCPolicy()
)

// Server is the read-only dashboard over stored runs.
type Server struct {
	db     *database.DB
	gen    *summarize.Generator
	pages  map[string]*template.Template
	router chi.Router
}

// New creates a new Server. gen may be nil, which disables the summary page.
func New(db *database.DB, gen *summarize.Generator) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"percent": func(n, total int) int {
			if total == 0 {
				return 0
			}
			return n * 100 / total
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "run.html", "summary.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, gen: gen, pages: pages, router: chi.NewRouter()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.router.Get("/", s.handleIndex)
	s.router.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/", s.handleRun)
		r.Get("/export.csv", s.handleExport)
		r.Get("/summary", s.handleSummary)
	})
	s.router.Get("/api/runs/{id}/view", s.handleView)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(0)
	if err != nil {
		slog.Error("listing runs", slog.Any("error", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, _ := s.db.GetStats()

	s.render(w, "index.html", map[string]any{
		"Runs":  runs,
		"Stats": stats,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	st, run, ok := s.loadState(w, r)
	if !ok {
		return
	}
	view := session.Derive(st)

	query := r.URL.RawQuery
	s.render(w, "run.html", map[string]any{
		"Run":                run,
		"State":              st,
		"View":               view,
		"Fields":             session.ChartFields,
		"Periods":            []aggregate.Period{aggregate.PeriodDay, aggregate.PeriodWeek, aggregate.PeriodMonth},
		"Groups":             []string{survey.FieldSentiment, survey.FieldIntent, survey.FieldTopics, survey.FieldEmotions},
		"ExportURL":          runURL(run.ID, "/export.csv", query),
		"SummaryURL":         runURL(run.ID, "/summary", withParam(query, "kind", "summary")),
		"RecommendationsURL": runURL(run.ID, "/summary", withParam(query, "kind", "recommendations")),
		"ViewURL":            template.URL("/api/runs/" + url.PathEscape(run.ID) + "/view?" + query), //nolint: gosec
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.loadState(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(session.Derive(st)); err != nil {
		slog.Error("encoding view", slog.Any("error", err))
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	st, run, ok := s.loadState(w, r)
	if !ok {
		return
	}
	view := session.Derive(st)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="surveylens-%s.csv"`, run.ID))
	fmt.Fprint(w, export.CSV(view.Records, run.Headers))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	st, run, ok := s.loadState(w, r)
	if !ok {
		return
	}
	if s.gen == nil {
		http.Error(w, "Summaries are not available", http.StatusServiceUnavailable)
		return
	}
	kind, err := summarize.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view := session.Derive(st)
	text, err := s.gen.Generate(r.Context(), kind, view.Records, r.URL.Query().Get("q"))
	if err != nil {
		switch {
		case errors.Is(err, summarize.ErrNoQuestion):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, summarize.ErrNoProvider):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		slog.Error("generating summary", slog.String("run", run.ID), slog.Any("error", err))
		http.Error(w, "Could not generate text", http.StatusBadGateway)
		return
	}

	s.render(w, "summary.html", map[string]any{
		"Run":     run,
		"Kind":    kind,
		"Text":    text,
		"Matched": view.Matched,
	})
}

// runURL builds a link under /runs/{id} that keeps the current view query.
func runURL(id, suffix, rawQuery string) template.URL {
	u := "/runs/" + url.PathEscape(id) + suffix
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return template.URL(u) //nolint: gosec
}

func withParam(rawQuery, key, value string) string {
	q, _ := url.ParseQuery(rawQuery)
	q.Set(key, value)
	return q.Encode()
}

// loadState fetches the run named in the URL and applies query options.
// It writes the error response itself and reports false on failure.
func (s *Server) loadState(w http.ResponseWriter, r *http.Request) (session.State, *database.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.db.GetRun(id)
	if err != nil {
		slog.Error("loading run", slog.String("run", id), slog.Any("error", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return session.State{}, nil, false
	}
	if run == nil {
		http.NotFound(w, r)
		return session.State{}, nil, false
	}

	records, err := s.db.GetResponses(run.ID)
	if err != nil {
		slog.Error("loading responses", slog.String("run", id), slog.Any("error", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return session.State{}, nil, false
	}

	st := session.FromRun(run, records)
	opts, err := queryOptions(r.URL.Query())
	if err == nil {
		st, err = session.Apply(st, opts)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return session.State{}, nil, false
	}
	return st, run, true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		slog.Error("template not found", slog.String("name", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		slog.Error("rendering template", slog.String("name", name), slog.Any("error", err))
	}
}

// renderMarkdown converts generated markdown to HTML. Model output is
// untrusted, so the HTML is sanitized before it is marked safe.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(sanitizer.SanitizeBytes(buf.Bytes())) //nolint: gosec
}

// Serve runs the HTTP server on the given port until ctx is cancelled.
func Serve(ctx context.Context, db *database.DB, gen *summarize.Generator, port int) error {
	srv, err := New(db, gen)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", slog.String("url", "http://"+addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
