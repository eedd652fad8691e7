// Package server exposes the HTTP surface: one route group per job
// domain plus a health endpoint.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/config"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/ingest"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/query"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/storage"
)

// Domain binds one ingest surface to its engine and store.
type Domain struct {
	Name   string
	Engine *ingest.Engine
	Store  storage.JobStore
	// Stats controls whether the /stats/ endpoint is mounted.
	Stats bool
}

// Server handles HTTP requests for every configured domain.
type Server struct {
	config  config.ServerConfig
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
	server  *http.Server
	domains []Domain
}

// New wires the route table and returns a server ready to Start.
func New(cfg config.ServerConfig, domains []Domain, loc *time.Location, now func() time.Time, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	s := &Server{
		config:  cfg,
		logger:  logger,
		loc:     loc,
		now:     now,
		domains: domains,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	for i := range domains {
		s.mountDomain(mux, &domains[i])
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) mountDomain(mux *http.ServeMux, d *Domain) {
	base := "/" + d.Name
	mux.HandleFunc(base+"/send-data/", exactly(base+"/send-data/", s.handleSendData(d)))
	mux.HandleFunc(base+"/get-data/", exactly(base+"/get-data/", s.handleGetData(d)))
	mux.HandleFunc(base+"/get-data/today/", exactly(base+"/get-data/today/", s.handleDay(d, 0)))
	mux.HandleFunc(base+"/get-data/yesterday/", exactly(base+"/get-data/yesterday/", s.handleDay(d, -1)))
	mux.HandleFunc(base+"/get-data/week/", exactly(base+"/get-data/week/", s.handleWeek(d)))
	mux.HandleFunc(base+"/get-data/month/", exactly(base+"/get-data/month/", s.handleMonth(d)))
	mux.HandleFunc(base+"/get-data/date/", s.handleDate(d, base+"/get-data/date/"))
	if d.Stats {
		mux.HandleFunc(base+"/stats/", exactly(base+"/stats/", s.handleStats(d)))
	}
}

// exactly rejects subtree matches beyond the registered path.
func exactly(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

// decodeBatch accepts either one JSON object or an array of objects and
// normalizes to a sequence.
func decodeBatch(body io.Reader) ([]json.RawMessage, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request body")
	}

	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return []json.RawMessage{data}, nil
}

func (s *Server) handleSendData(d *Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		items, err := decodeBatch(r.Body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
			return
		}

		result := d.Engine.ProcessBatch(r.Context(), items)

		resp := map[string]any{
			"created":       result.Created,
			"updated":       result.Updated,
			"skipped":       result.Skipped,
			"total_created": len(result.Created),
			"total_updated": len(result.Updated),
			"total_errors":  len(result.Errors),
		}
		if len(result.Errors) > 0 {
			resp["errors"] = result.Errors
		}

		status := http.StatusBadRequest
		switch {
		case len(result.Created) > 0:
			status = http.StatusCreated
		case len(result.Updated) > 0:
			status = http.StatusOK
		}
		s.writeJSON(w, status, resp)
	}
}

func (s *Server) listResponse(ctx context.Context, d *Domain, f query.Filter, extra map[string]any) (map[string]any, error) {
	jobs, err := d.Store.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	resp := map[string]any{
		"count": len(jobs),
		"jobs":  jobs,
	}
	for k, v := range extra {
		resp[k] = v
	}
	return resp, nil
}

func (s *Server) handleGetData(d *Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		f, raw := query.ParseFilter(r.URL.Query(), s.now(), s.loc)
		resp, err := s.listResponse(r.Context(), d, f, map[string]any{"filters": raw})
		if err != nil {
			s.logger.Error("failed to list jobs", zap.String("domain", d.Name), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to retrieve jobs")
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// handleDay serves the today/yesterday windows; dayOffset is relative
// to the current calendar date.
func (s *Server) handleDay(d *Domain, dayOffset int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		day := s.now().In(s.loc).AddDate(0, 0, dayOffset)
		var f query.Filter
		if dayOffset == 0 {
			f = query.Today(s.now(), s.loc)
		} else {
			f = query.Yesterday(s.now(), s.loc)
		}

		resp, err := s.listResponse(r.Context(), d, f, map[string]any{
			"date": day.Format("2006-01-02"),
		})
		if err != nil {
			s.logger.Error("failed to list jobs", zap.String("domain", d.Name), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to retrieve jobs")
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleWeek(d *Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		now := s.now().In(s.loc)
		f := query.LastWeek(s.now())
		resp, err := s.listResponse(r.Context(), d, f, map[string]any{
			"period": "last_7_days",
			"from":   f.From.In(s.loc).Format("2006-01-02"),
			"to":     now.Format("2006-01-02"),
		})
		if err != nil {
			s.logger.Error("failed to list jobs", zap.String("domain", d.Name), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to retrieve jobs")
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleMonth(d *Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		now := s.now().In(s.loc)
		f := query.ThisMonth(s.now(), s.loc)
		resp, err := s.listResponse(r.Context(), d, f, map[string]any{
			"period": "current_month",
			"month":  now.Format("January 2006"),
			"from":   f.From.Format("2006-01-02"),
			"to":     now.Format("2006-01-02"),
		})
		if err != nil {
			s.logger.Error("failed to list jobs", zap.String("domain", d.Name), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to retrieve jobs")
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDate(d *Domain, prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		dateStr := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
		f, err := query.OnDate(dateStr, s.loc)
		if err != nil {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid date format %q, use YYYY-MM-DD", dateStr))
			return
		}

		resp, err := s.listResponse(r.Context(), d, f, map[string]any{"date": dateStr})
		if err != nil {
			s.logger.Error("failed to list jobs", zap.String("domain", d.Name), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to retrieve jobs")
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleStats(d *Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		stats, err := d.Store.Stats(r.Context(), s.now().In(s.loc))
		if err != nil {
			s.logger.Error("failed to compute stats", zap.String("domain", d.Name), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to retrieve stats")
			return
		}

		s.writeJSON(w, http.StatusOK, stats)
	}
}
