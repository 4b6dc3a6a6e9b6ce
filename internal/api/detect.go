package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/contracheck/contracheck/internal/embeddings"
	"github.com/contracheck/contracheck/internal/nli"
	"github.com/contracheck/contracheck/internal/scrape"
	"github.com/contracheck/contracheck/internal/segmenter"
	"github.com/contracheck/contracheck/pkg/models"

	"github.com/go-chi/chi/v5"
)

// DetectRequest is the body of POST /api/v1/detect.
type DetectRequest struct {
	Claim  string              `json:"claim"`
	Params models.DetectParams `json:"params"`
}

// handleDetect runs one detection request. A scorer outage is a 503
// "detection unavailable", never an empty hit list.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Claim == "" {
		respondError(w, http.StatusBadRequest, "claim is required")
		return
	}

	result, err := s.detector.Detect(r.Context(), req.Claim, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, segmenter.ErrMalformedInput):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, nli.ErrScorerUnavailable):
			respondError(w, http.StatusServiceUnavailable, "detection unavailable: scorer backend not loaded")
		case errors.Is(err, embeddings.ErrUnavailable):
			respondError(w, http.StatusServiceUnavailable, "detection unavailable: embedding backend not loaded")
		default:
			s.log.Error().Err(err).Msg("detection failed")
			respondError(w, http.StatusInternalServerError, "detection failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"providers": s.scraper.Providers()})
}

// handleScrape triggers one provider run. Optional query parameters:
// since (RFC 3339) and limit.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "provider")

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = &t
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	result, err := s.scraper.Run(r.Context(), slug, since, limit)
	if err != nil {
		if errors.Is(err, scrape.ErrUnknownProvider) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.Error().Err(err).Str("provider", slug).Msg("scrape run failed")
		respondError(w, http.StatusBadGateway, "scrape run failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
