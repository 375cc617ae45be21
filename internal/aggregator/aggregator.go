package aggregator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/cache"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// Broadcaster pushes envelopes to connected dashboards
type Broadcaster interface {
	Broadcast(env types.Envelope)
}

// Aggregator periodically expires idle live sessions and publishes the
// list of active calls to every dashboard
type Aggregator struct {
	sessions    *cache.SessionTracker
	broadcaster Broadcaster
	ttl         time.Duration
	interval    time.Duration
	onEvict     func(callID string)
	logger      zerolog.Logger
}

// NewAggregator creates a new aggregator. onEvict, when set, is called for
// every call whose session expired.
func NewAggregator(sessions *cache.SessionTracker, broadcaster Broadcaster, ttl time.Duration, onEvict func(string), logger zerolog.Logger) *Aggregator {
	if ttl <= 0 {
		ttl = cache.DefaultSessionTTL
	}
	return &Aggregator{
		sessions:    sessions,
		broadcaster: broadcaster,
		ttl:         ttl,
		interval:    time.Second,
		onEvict:     onEvict,
		logger:      logger.With().Str("component", "aggregator").Logger(),
	}
}

// Start runs the aggregation loop until ctx is done
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info().Dur("session_ttl", a.ttl).Msg("aggregator started")

	last := 0
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("aggregator stopped")
			return

		case <-ticker.C:
			last = a.tick(last)
		}
	}
}

// tick runs one aggregation cycle and returns the number of live sessions.
// Nothing is broadcast while no call is live, except the one empty list
// that follows the last session going away.
func (a *Aggregator) tick(previous int) int {
	for _, callID := range a.sessions.EvictStale(a.ttl) {
		a.logger.Info().Str("call_id", callID).Msg("live session expired")
		if a.onEvict != nil {
			a.onEvict(callID)
		}
	}

	active := a.sessions.Active()
	metrics.LiveSessions.Set(float64(len(active)))
	if len(active) == 0 && previous == 0 {
		return 0
	}

	payload, err := json.Marshal(active)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to marshal sessions")
		metrics.Errors.WithLabelValues("aggregator", "marshal").Inc()
		return len(active)
	}

	a.broadcaster.Broadcast(types.Envelope{
		Type:      types.MessageTypeSessions,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})

	a.logger.Debug().Int("sessions", len(active)).Msg("sessions broadcasted")
	return len(active)
}
