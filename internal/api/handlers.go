package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/contracheck/contracheck/internal/auth"
	"github.com/contracheck/contracheck/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := s.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if err == auth.ErrUserExists {
			respondError(w, http.StatusConflict, "user already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID,
		"email": user.Email,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := s.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "sourceID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	if _, err := s.sources.GetByID(r.Context(), sourceID); err != nil {
		if err == storage.ErrSourceNotFound {
			respondError(w, http.StatusNotFound, "source not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to fetch source")
		return
	}

	segments, err := s.segments.ListBySource(r.Context(), sourceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list segments")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"segments": segments})
}

func (s *Server) handleCorpusReset(w http.ResponseWriter, r *http.Request) {
	if err := s.segments.Reset(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reset corpus")
		return
	}
	s.log.Warn().Msg("corpus reset")
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
