package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when creating a row whose id is already taken
	ErrConflict = errors.New("storage: already exists")
)

// CallRepository persists calls
type CallRepository interface {
	CreateCall(ctx context.Context, call types.Call) (types.Call, error)
	GetCall(ctx context.Context, id string) (types.Call, error)
	UpdateCall(ctx context.Context, id string, update types.CallUpdate) (types.Call, error)
	ListCalls(ctx context.Context, filters types.CallFilters, limit int) ([]types.Call, error)
	// DeleteCall removes the call and every turn, metric and suggestion of it
	DeleteCall(ctx context.Context, id string) error
}

// TurnRepository persists conversational turns
type TurnRepository interface {
	CreateTurn(ctx context.Context, turn types.ConversationalTurn) (types.ConversationalTurn, error)
	GetTurn(ctx context.Context, id string) (types.ConversationalTurn, error)
	// ListTurns returns the call's turns ordered by turn number
	ListTurns(ctx context.Context, callID string) ([]types.ConversationalTurn, error)
	DeleteTurn(ctx context.Context, id string) error
	// MaxTurnNumber returns the highest turn number of the call, 0 if none
	MaxTurnNumber(ctx context.Context, callID string) (int, error)
}

// MetricRepository persists emotion samples
type MetricRepository interface {
	CreateMetric(ctx context.Context, metric types.EmotionalMetric) (types.EmotionalMetric, error)
	GetMetric(ctx context.Context, id string) (types.EmotionalMetric, error)
	// ListMetrics returns the call's metrics ordered by timestamp offset
	ListMetrics(ctx context.Context, callID string) ([]types.EmotionalMetric, error)
	DeleteMetric(ctx context.Context, id string) error
}

// SuggestionRepository persists suggestions
type SuggestionRepository interface {
	CreateSuggestion(ctx context.Context, s types.Suggestion) (types.Suggestion, error)
	GetSuggestion(ctx context.Context, id string) (types.Suggestion, error)
	// ListSuggestions returns the call's suggestions ordered by timestamp offset
	ListSuggestions(ctx context.Context, callID string) ([]types.Suggestion, error)
	UpdateSuggestion(ctx context.Context, id string, update types.SuggestionUpdate) (types.Suggestion, error)
	DeleteSuggestion(ctx context.Context, id string) error
}

// Store is the full persistence boundary of the service
type Store interface {
	CallRepository
	TurnRepository
	MetricRepository
	SuggestionRepository
	Close() error
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadConfig()
	logger = logger.With().Str("component", "storage").Logger()

	switch cfg.Mode {
	case ModePostgres:
		store, err := OpenPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case ModeDynamoLocal, ModeDynamoAWS:
		return NewDynamoDBStore(ctx, cfg.Dynamo, logger)
	default:
		logger.Info().Msg("using in-memory store (STORE_MODE=memory)")
		return NewMemoryStore(), nil
	}
}

func newID() string {
	return uuid.New().String()
}

func now() time.Time {
	return time.Now().UTC()
}

func prepareCall(c types.Call) types.Call {
	if c.ID == "" {
		c.ID = newID()
	}
	ts := now()
	if c.StartTime.IsZero() {
		c.StartTime = ts
	}
	c.CreatedAt = ts
	c.UpdatedAt = ts
	return c
}

func prepareTurn(t types.ConversationalTurn) types.ConversationalTurn {
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt = now()
	return t
}

func prepareMetric(m types.EmotionalMetric) types.EmotionalMetric {
	if m.ID == "" {
		m.ID = newID()
	}
	m.CreatedAt = now()
	return m
}

func prepareSuggestion(s types.Suggestion) types.Suggestion {
	if s.ID == "" {
		s.ID = newID()
	}
	s.CreatedAt = now()
	return s
}
