package httpserver

import (
	"bytes"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/helixir/research-feed-service/internal/domain"
	"github.com/helixir/research-feed-service/internal/pipeline"
)

// refreshResponse is the JSON body returned by POST /refresh.
type refreshResponse struct {
	RunID         string         `json:"run_id"`
	LastUpdated   time.Time      `json:"last_updated"`
	TotalArticles int            `json:"total_articles"`
	ArticleCounts map[string]int `json:"article_counts"`
	Duration      string         `json:"duration"`
}

// snapshotUnavailableResponse is the 404 body for a missing snapshot. It lists
// the catalog with no articles so clients can still render every category.
type snapshotUnavailableResponse struct {
	Error      string                    `json:"error"`
	Categories []domain.CategoryArticles `json:"categories"`
}

// snapshotHandler handles GET /data/research.json. The file is read on every
// request so a refresh is visible immediately.
func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.recordServed(http.StatusNotFound)
			writeJSON(w, http.StatusNotFound, snapshotUnavailableResponse{
				Error:      "snapshot not available",
				Categories: s.fallback,
			})
			return
		}
		s.logger.Error().Err(err).Str("path", s.snapshotPath).Msg("failed to read snapshot")
		s.recordServed(http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}

	var modTime time.Time
	if info, err := os.Stat(s.snapshotPath); err == nil {
		modTime = info.ModTime()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	s.recordServed(http.StatusOK)
	http.ServeContent(w, r, "research.json", modTime, bytes.NewReader(data))
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports ready once a snapshot has been published.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.snapshotPath); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"snapshot": "missing",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"snapshot": "present",
	})
}

// refreshHandler handles POST /refresh by running one refresh synchronously.
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.refresher.TryRefresh(r.Context(), pipeline.TriggerManual)
	if err != nil {
		if errors.Is(err, pipeline.ErrRefreshInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("failed to refresh research feed")
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		RunID:         result.RunID,
		LastUpdated:   result.Snapshot.LastUpdated,
		TotalArticles: result.Snapshot.TotalArticles(),
		ArticleCounts: result.Snapshot.ArticleCounts(),
		Duration:      result.Duration.String(),
	})
}

func (s *Server) recordServed(status int) {
	if s.metrics != nil {
		s.metrics.RecordSnapshotServed(status)
	}
}
