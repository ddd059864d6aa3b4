// Package handlers provides HTTP handlers for analysis runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/0juano/fundlens/internal/domain"
	"github.com/0juano/fundlens/internal/modules/estimation"
	"github.com/0juano/fundlens/internal/modules/history"
	"github.com/0juano/fundlens/internal/modules/report"
)

// Handler handles analysis HTTP requests
type Handler struct {
	svc     *estimation.Service
	reports *report.Store
	log     zerolog.Logger
}

// NewHandler creates a new analysis handler
func NewHandler(svc *estimation.Service, reports *report.Store, log zerolog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		reports: reports,
		log:     log.With().Str("handler", "estimation").Logger(),
	}
}

// HandleRunAnalysis handles POST /api/analysis
func (h *Handler) HandleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req estimation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Fund == "" {
		http.Error(w, "Missing fund symbol", http.StatusBadRequest)
		return
	}

	rep, err := h.svc.Run(r.Context(), req)
	if err != nil {
		h.writeRunError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// HandleGetLatest handles GET /api/analysis/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		http.Error(w, "Report persistence disabled", http.StatusNotFound)
		return
	}
	rep, err := h.reports.Latest(r.Context())
	if err != nil {
		if errors.Is(err, report.ErrNoReports) {
			h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error": "no analysis has completed yet",
			})
			return
		}
		h.log.Error().Err(err).Msg("Failed to load latest report")
		http.Error(w, "Failed to load latest report", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// HandleHealth handles GET /api/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeRunError maps pipeline errors onto HTTP statuses with structured
// payloads for the data-quality failures a caller can act on.
func (h *Handler) writeRunError(w http.ResponseWriter, err error) {
	var alignErr *domain.DataAlignmentError
	if errors.As(err, &alignErr) {
		missing := make([]string, len(alignErr.MissingDates))
		for i, d := range alignErr.MissingDates {
			missing[i] = d.Format("2006-01-02")
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":           "data alignment failed",
			"missing_dates":   missing,
			"latest_complete": alignErr.LatestComplete.Format("2006-01-02"),
			"fund_max":        alignErr.FundMax.Format("2006-01-02"),
		})
		return
	}

	var insufErr *domain.InsufficientDataError
	if errors.As(err, &insufErr) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "insufficient data",
			"months":  insufErr.Months,
			"minimum": insufErr.Minimum,
		})
		return
	}

	if errors.Is(err, history.ErrSeriesNotFound) {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	h.log.Error().Err(err).Msg("Analysis run failed")
	http.Error(w, "Analysis run failed", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
