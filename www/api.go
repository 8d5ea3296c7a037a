package www

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/perchd/perch/db"
	"github.com/perchd/perch/snd"
)

type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Task     string  `json:"task"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Too late for a status change; the connection is what it is.
		return
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, apiError{
		Error: apiErrorBody{Message: message, Type: kind},
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "perch speech-to-text server",
		"endpoints": map[string]string{
			"health":     "/health",
			"models":     "/v1/models",
			"transcribe": "/v1/audio/transcriptions",
			"realtime":   "/v1/realtime (websocket)",
		},
		"usage": "POST /v1/audio/transcriptions with multipart form data " +
			"containing a 'file' field",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	modelPath := ""
	if s.engine == nil {
		status = "degraded"
	} else {
		modelPath = s.engine.Info().Path
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"model_loaded": s.engine != nil,
		"model_path":   modelPath,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	list := modelList{Object: "list", Data: []modelEntry{}}
	if s.engine != nil {
		list.Data = append(list.Data, modelEntry{
			ID:      s.engine.Info().ID,
			Object:  "model",
			Created: 1700000000,
			OwnedBy: "local",
		})
	}
	writeJSON(w, http.StatusOK, list)
}

// handleTranscribe is the one-shot path: a complete WAV upload in, a
// transcript out.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.logger.Error("transcription requested with no model loaded")
		writeError(
			w,
			http.StatusInternalServerError,
			"server_error",
			"Model not loaded",
		)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"invalid_request_error",
			"missing 'file' form field",
		)
		return
	}
	defer file.Close()

	audio, err := snd.ReadWAV(file)
	if err != nil {
		s.logger.Warn("unusable upload", "file", header.Filename, "error", err)
		writeError(
			w,
			http.StatusBadRequest,
			"invalid_request_error",
			"could not decode audio: "+err.Error(),
		)
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}
	format := r.FormValue("response_format")
	if format == "" {
		format = "json"
	}

	started := time.Now()
	duration := float64(len(audio.Samples)) / float64(audio.SampleRate)
	samples := snd.Resample(audio.Samples, audio.SampleRate, s.engine.SampleRate())

	result, err := s.engine.Transcribe(r.Context(), samples)
	if err != nil {
		s.logger.Error(
			"transcription failed",
			"file", header.Filename,
			"error", err,
		)
		writeError(
			w,
			http.StatusInternalServerError,
			"transcription_error",
			err.Error(),
		)
		return
	}

	s.logger.Info(
		"transcribed",
		"file", header.Filename,
		"seconds", duration,
		"chars", len(result.Text),
	)

	s.persist(db.SessionRecord{
		ID:          uuid.New().String(),
		Kind:        db.KindTranscription,
		Model:       s.engine.Info().ID,
		StartedAt:   started,
		Duration:    duration,
		SampleCount: int64(len(samples)),
		Text:        result.Text,
	})

	if format == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, result.Text)
		return
	}

	writeJSON(w, http.StatusOK, transcriptionResponse{
		Text:     result.Text,
		Task:     "transcribe",
		Language: language,
		Duration: duration,
	})
}

// persist writes a finished session to the store, if one is configured.
// Storage failures are logged and never surfaced to the client.
func (s *Server) persist(rec db.SessionRecord) {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SaveSession(ctx, rec); err != nil {
		s.logger.Error("persist session", "id", rec.ID, "error", err)
	}
}
