package api

import (
	"math"
	"net/http"

	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

const (
	analyticsScanLimit = 100
	recentCallsLimit   = 10
)

// Analytics is the aggregate view over recent calls
type Analytics struct {
	TotalCalls      int          `json:"totalCalls"`
	SuccessRate     int          `json:"successRate"`
	AvgSatisfaction int          `json:"avgSatisfaction"`
	RecentCalls     []types.Call `json:"recentCalls"`
}

// AnalyticsHandler serves GET /api/analytics
type AnalyticsHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(store storage.Store, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		store:  store,
		logger: logger.With().Str("component", "analytics_handler").Logger(),
	}
}

// HandleAnalytics computes the counters over the newest calls
// GET /api/analytics
func (h *AnalyticsHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	calls, err := h.store.ListCalls(r.Context(), types.CallFilters{}, analyticsScanLimit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list calls for analytics")
		writeError(w, http.StatusInternalServerError, "Failed to fetch analytics", "")
		return
	}

	successful := 0
	for _, c := range calls {
		if c.Outcome != nil && *c.Outcome == types.OutcomeSuccessful {
			successful++
		}
	}

	var (
		satisfaction float64
		samples      int
	)
	for _, c := range calls {
		metrics, err := h.store.ListMetrics(r.Context(), c.ID)
		if err != nil {
			h.logger.Warn().Err(err).Str("call_id", c.ID).Msg("skipping call metrics in analytics")
			continue
		}
		for _, m := range metrics {
			satisfaction += m.Satisfaction
			samples++
		}
	}

	out := Analytics{
		TotalCalls:  len(calls),
		RecentCalls: calls,
	}
	if len(calls) > 0 {
		out.SuccessRate = int(math.Round(float64(successful) / float64(len(calls)) * 100))
	}
	if samples > 0 {
		out.AvgSatisfaction = int(math.Round(satisfaction / float64(samples)))
	}
	if out.RecentCalls == nil {
		out.RecentCalls = []types.Call{}
	}
	if len(out.RecentCalls) > recentCallsLimit {
		out.RecentCalls = out.RecentCalls[:recentCallsLimit]
	}

	writeJSON(w, http.StatusOK, out)
}
