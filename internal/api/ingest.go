package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/contracheck/contracheck/internal/segmenter"
	"github.com/contracheck/contracheck/internal/storage"
	"github.com/contracheck/contracheck/internal/transcribe"
	"github.com/contracheck/contracheck/pkg/models"
)

const maxUploadSize = 50 << 20 // 50 MB

// IngestResponse is returned by all ingestion endpoints.
type IngestResponse struct {
	SourceID int64  `json:"source_id"`
	Status   string `json:"status"`
}

// handleIngestCaptions ingests an uploaded SRT/VTT/JSONL caption file.
// Metadata travels as form fields next to the file.
func (s *Server) handleIngestCaptions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	source := &models.Source{
		Type:      models.SourceSubtitleFile,
		Title:     r.FormValue("title"),
		URL:       r.FormValue("url"),
		MediaPath: r.FormValue("media_path"),
	}
	if source.Title == "" {
		source.Title = header.Filename
	}
	if published := r.FormValue("published_at"); published != "" {
		t, err := time.Parse(time.RFC3339, published)
		if err != nil {
			respondError(w, http.StatusBadRequest, "published_at must be RFC 3339")
			return
		}
		source.PublishedAt = &t
	}

	sourceID, err := s.ingester.IngestCaptions(r.Context(), source, header.Filename, file)
	if err != nil {
		s.respondIngestError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, IngestResponse{SourceID: sourceID, Status: "ingested"})
}

// handleIngestText ingests typed plain text, one statement per line.
func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string     `json:"title"`
		URL         string     `json:"url"`
		PublishedAt *time.Time `json:"published_at"`
		Text        string     `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	source := &models.Source{
		Type:        models.SourceTypedText,
		Title:       req.Title,
		URL:         req.URL,
		PublishedAt: req.PublishedAt,
	}

	sourceID, err := s.ingester.IngestText(r.Context(), source, req.Text)
	if err != nil {
		s.respondIngestError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, IngestResponse{SourceID: sourceID, Status: "ingested"})
}

// handleIngestAudio forwards the upload to the transcription service and
// ingests the timed transcript it returns.
func (s *Server) handleIngestAudio(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		respondError(w, http.StatusServiceUnavailable, "transcription not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	lines, err := s.transcriber.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, transcribe.ErrUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "transcription service unavailable")
			return
		}
		respondError(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	source := &models.Source{
		Type:      models.SourceTranscribed,
		Title:     r.FormValue("title"),
		MediaPath: r.FormValue("media_path"),
	}
	if source.Title == "" {
		source.Title = header.Filename
	}

	sourceID, err := s.ingester.IngestTimed(r.Context(), source, lines)
	if err != nil {
		s.respondIngestError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, IngestResponse{SourceID: sourceID, Status: "ingested"})
}

func (s *Server) respondIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, segmenter.ErrMalformedInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrLockContention):
		respondError(w, http.StatusConflict, "storage busy, retry")
	default:
		s.log.Error().Err(err).Msg("ingestion failed")
		respondError(w, http.StatusInternalServerError, "ingestion failed")
	}
}
