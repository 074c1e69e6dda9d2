package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/boundary"
	"github.com/sells-group/farmndvi/internal/geo"
	"github.com/sells-group/farmndvi/internal/store"
)

const maxFieldsBody = 4 << 20

// handleListFields serves the local boundary API. A farm with no stored
// fields is a 404 so the boundary chain moves on to its next source.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmId")
	ctx, cancel := context.WithTimeout(r.Context(), s.fieldsTimeout)
	defer cancel()

	fields, err := s.store.ListFields(ctx, farmID)
	if err != nil {
		zap.L().Error("http: list fields", zap.String("farm_id", farmID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list fields")
		return
	}
	if len(fields) == 0 {
		writeError(w, http.StatusNotFound, "no fields for farm")
		return
	}
	writeJSON(w, http.StatusOK, boundary.Encode(fields))
}

func (s *Server) handleReplaceFields(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmId")

	var req boundary.Response
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFieldsBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := req.Decode()
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		check := f
		if check.ID == "" {
			// Ids are assigned on save.
			check.ID = "new"
		} else if _, dup := seen[f.ID]; dup {
			writeError(w, http.StatusBadRequest, "duplicate field id "+f.ID)
			return
		}
		if err := check.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		seen[f.ID] = struct{}{}
		fields[i] = geo.EnsureArea(f)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.fieldsTimeout)
	defer cancel()

	saved, err := s.store.ReplaceFields(ctx, farmID, fields)
	if err != nil {
		zap.L().Error("http: replace fields", zap.String("farm_id", farmID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save fields")
		return
	}
	writeJSON(w, http.StatusOK, boundary.Encode(saved))
}

func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmId")
	fieldID := chi.URLParam(r, "fieldId")
	ctx, cancel := context.WithTimeout(r.Context(), s.fieldsTimeout)
	defer cancel()

	if err := s.store.DeleteField(ctx, farmID, fieldID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "field not found")
			return
		}
		zap.L().Error("http: delete field", zap.String("farm_id", farmID), zap.String("field_id", fieldID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete field")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
