package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/progress"
)

const resultsTimeout = 5 * time.Second

//go:embed templates/results.html
var templateFS embed.FS

var resultsTemplate = template.Must(template.New("results.html").Funcs(template.FuncMap{
	"ts": func(t time.Time) string { return t.Format(time.RFC3339) },
}).ParseFS(templateFS, "templates/results.html"))

type resultsPage struct {
	Rows     []plates.Observation
	Snapshot progress.Snapshot
}

// resultsJSON handles GET /results.json?limit=N. It returns a JSON array of
// observations, newest first, or 400 when limit is not a non-negative integer.
func (s *Server) resultsJSON(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	rows, ok := s.scan(w, r, limit)
	if !ok {
		return
	}
	writeJSON(w, s.logger, http.StatusOK, rows)
}

// resultsHTML renders every stored observation with the current run summary.
func (s *Server) resultsHTML(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.scan(w, r, 0)
	if !ok {
		return
	}
	var buf bytes.Buffer
	page := resultsPage{Rows: rows, Snapshot: s.ctrl.Snapshot()}
	if err := resultsTemplate.Execute(&buf, page); err != nil {
		s.logger.Error("render results failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to render results")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write results page failed", zap.Error(err))
	}
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request, limit int) ([]plates.Observation, bool) {
	if s.results == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "result store unavailable")
		return nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), resultsTimeout)
	defer cancel()
	rows, err := s.results.Scan(ctx, limit)
	if err != nil {
		s.logger.Error("scan results failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to read results")
		return nil, false
	}
	if rows == nil {
		rows = []plates.Observation{}
	}
	return rows, true
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}
