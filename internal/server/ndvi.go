package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/model"
	"github.com/sells-group/farmndvi/internal/ndvi"
)

// staleHeader marks a response built from an expired cache entry.
const staleHeader = "X-Snapshot-Stale"

type seriesResponse struct {
	FarmID     string            `json:"farm_id"`
	FieldID    string            `json:"field_id"`
	IsRealData bool              `json:"is_real_data"`
	Series     []model.NdviPoint `json:"series"`
}

type statsResponse struct {
	FarmID     string `json:"farm_id"`
	FieldID    string `json:"field_id"`
	IsRealData bool   `json:"is_real_data"`
	ndvi.SeriesStats
}

// handleSnapshot serves GET /api/farms/{farmId}/ndvi?name=&refresh=&date=.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmId")
	q := r.URL.Query()

	refresh := false
	if v := q.Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
		refresh = b
	}

	var target time.Time
	if v := q.Get("date"); v != "" {
		d, err := model.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		target = d
	}

	snap, ok := s.snapshot(w, r, farmID, q.Get("name"), refresh)
	if !ok {
		return
	}
	if !target.IsZero() {
		snap = ndvi.Project(snap, target)
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSeries serves one field's series, optionally windowed by from/to.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	rec, farmID, fieldID, ok := s.fieldRecord(w, r)
	if !ok {
		return
	}
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		FarmID:     farmID,
		FieldID:    fieldID,
		IsRealData: rec.IsRealData,
		Series:     ndvi.Window(rec.Series, from, to),
	})
}

// handleStats serves the summary and value zones of one field's series.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rec, farmID, fieldID, ok := s.fieldRecord(w, r)
	if !ok {
		return
	}
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	stats, err := ndvi.Summarize(ndvi.Window(rec.Series, from, to))
	if err != nil {
		writeError(w, http.StatusNotFound, "no data in range")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		FarmID:      farmID,
		FieldID:     fieldID,
		IsRealData:  rec.IsRealData,
		SeriesStats: stats,
	})
}

func (s *Server) fieldRecord(w http.ResponseWriter, r *http.Request) (model.FieldRecord, string, string, bool) {
	farmID := chi.URLParam(r, "farmId")
	fieldID := chi.URLParam(r, "fieldId")

	snap, ok := s.snapshot(w, r, farmID, r.URL.Query().Get("name"), false)
	if !ok {
		return model.FieldRecord{}, farmID, fieldID, false
	}
	rec, found := snap.Fields[fieldID]
	if !found {
		writeError(w, http.StatusNotFound, "field not found")
		return model.FieldRecord{}, farmID, fieldID, false
	}
	return rec, farmID, fieldID, true
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request, farmID, name string, refresh bool) (*model.FarmSnapshot, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), s.ndviTimeout)
	defer cancel()

	snap, err := s.snapshots.Get(ctx, farmID, name, refresh)
	if err == nil {
		return snap, true
	}
	// An expired snapshot beats no answer when a rebuild fails.
	if stale, ok := s.snapshots.Peek(farmID); ok && stale != nil {
		zap.L().Warn("http: serving stale snapshot", zap.String("farm_id", farmID), zap.Error(err))
		w.Header().Set(staleHeader, "true")
		return stale, true
	}
	zap.L().Warn("http: snapshot request ended early", zap.String("farm_id", farmID), zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "snapshot not available")
	return nil, false
}

func parseWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	var from, to time.Time
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &from}, {"to", &to}} {
		v := r.URL.Query().Get(p.key)
		if v == "" {
			continue
		}
		d, err := model.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, p.key+" must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		*p.dst = d
	}
	return from, to, true
}
