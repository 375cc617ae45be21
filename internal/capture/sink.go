package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// Sink receives each encoded chunk of a capture
type Sink interface {
	Send(ctx context.Context, chunk []byte) error
}

// LocalSession is the capturer's own view of the call, built from the
// server's responses
type LocalSession struct {
	mu          sync.Mutex
	lines       []string
	emotions    []types.Emotions
	suggestions []types.Suggestion
}

// Apply folds one server update into the session
func (s *LocalSession) Apply(update types.IncrementalUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Transcript != "" {
		s.lines = append(s.lines, update.Transcript)
	}
	if update.Emotions != (types.Emotions{}) {
		s.emotions = append(s.emotions, update.Emotions)
	}
	s.suggestions = append(s.suggestions, update.Suggestions...)
}

// Transcript returns the transcript lines received so far
func (s *LocalSession) Transcript() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Emotions returns the emotion history received so far
func (s *LocalSession) Emotions() []types.Emotions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Emotions(nil), s.emotions...)
}

// Suggestions returns every suggestion received so far
func (s *LocalSession) Suggestions() []types.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Suggestion(nil), s.suggestions...)
}

// HTTPSink posts chunks to the server's live endpoint
type HTTPSink struct {
	url     string
	callID  string
	client  *http.Client
	session *LocalSession
	logger  zerolog.Logger
}

// NewHTTPSink creates a sink posting to {server}/api/live for callID
func NewHTTPSink(server, callID string, session *LocalSession, logger zerolog.Logger) *HTTPSink {
	return &HTTPSink{
		url:     strings.TrimRight(server, "/") + "/api/live",
		callID:  callID,
		client:  &http.Client{Timeout: 60 * time.Second},
		session: session,
		logger:  logger.With().Str("component", "sink").Str("call_id", callID).Logger(),
	}
}

// Send posts one chunk and applies the returned update to the local session
func (s *HTTPSink) Send(ctx context.Context, chunk []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return fmt.Errorf("write audio part: %w", err)
	}
	if err := mw.WriteField("callId", s.callID); err != nil {
		return fmt.Errorf("write callId: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var update types.IncrementalUpdate
	if err := json.NewDecoder(resp.Body).Decode(&update); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	if s.session != nil {
		s.session.Apply(update)
	}

	event := s.logger.Info().Int("bytes", len(chunk)).Int("suggestions", len(update.Suggestions))
	if update.Transcript != "" {
		event = event.Str("transcript", update.Transcript)
	}
	event.Msg("chunk analyzed")

	for _, sg := range update.Suggestions {
		s.logger.Info().Str("priority", string(sg.Priority)).Str("rule", sg.Rule).Msg(sg.Text)
	}
	return nil
}
