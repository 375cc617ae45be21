package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/pipeline"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// Pipeline is the analysis surface the audio endpoints drive
type Pipeline interface {
	ProcessChunk(ctx context.Context, callID string, audio []byte) (types.IncrementalUpdate, error)
	ProcessUpload(ctx context.Context, audio []byte) (pipeline.UploadResult, error)
	EndCall(ctx context.Context, callID string, outcome *types.CallOutcome) (pipeline.EndResult, error)
}

// SessionLister reports the calls currently receiving live chunks
type SessionLister interface {
	Active() []types.SessionSummary
}

// LiveHandler serves the audio ingestion endpoints
type LiveHandler struct {
	pipeline Pipeline
	sessions SessionLister
	maxBytes int64
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewLiveHandler creates a LiveHandler. maxBytes bounds the multipart body
// and timeout bounds the vendor work of one request; zero disables it.
func NewLiveHandler(p Pipeline, sessions SessionLister, maxBytes int64, timeout time.Duration, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		pipeline: p,
		sessions: sessions,
		maxBytes: maxBytes,
		timeout:  timeout,
		logger:   logger.With().Str("component", "live_handler").Logger(),
	}
}

// HandleLive processes one live chunk
// POST /api/live (multipart: audio, callId)
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	audio, err := h.readAudio(w, r)
	if err != nil {
		h.rejectAudio(w, err, "Missing audio or callId")
		return
	}
	callID := r.FormValue("callId")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "Missing audio or callId", "")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	update, err := h.pipeline.ProcessChunk(ctx, callID, audio)
	if err != nil {
		h.logger.Error().Err(err).Str("call_id", callID).Msg("failed to process live chunk")
		writeError(w, http.StatusInternalServerError, "Failed to process audio", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, update)
}

// HandleUpload analyzes a complete recording as a new call
// POST /api/upload (multipart: audio)
func (h *LiveHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	audio, err := h.readAudio(w, r)
	if err != nil {
		h.rejectAudio(w, err, "No audio file provided")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	result, err := h.pipeline.ProcessUpload(ctx, audio)
	if err != nil {
		h.logger.Error().Err(err).Int("bytes", len(audio)).Msg("failed to process upload")
		writeError(w, http.StatusInternalServerError, "Failed to process audio", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleSessions lists the live sessions
// GET /api/live/sessions
func (h *LiveHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Active())
}

// readAudio returns the bytes of the multipart "audio" part
func (h *LiveHandler) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// rejectAudio answers a failed readAudio: 413 when the body exceeded the
// upload limit, otherwise 400 with msg
func (h *LiveHandler) rejectAudio(w http.ResponseWriter, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.logger.Warn().Int64("limit", tooLarge.Limit).Msg("audio upload over limit")
		writeError(w, http.StatusRequestEntityTooLarge, "Audio too large", fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
		return
	}
	if !errors.Is(err, http.ErrMissingFile) {
		h.logger.Debug().Err(err).Msg("invalid audio request")
	}
	writeError(w, http.StatusBadRequest, msg, "")
}

func (h *LiveHandler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}
