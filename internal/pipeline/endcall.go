package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/emotion"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// EndResult is what EndCall returns and broadcasts
type EndResult struct {
	Call    types.Call        `json:"call"`
	Summary types.CallSummary `json:"summary"`
}

// EndCall closes a call: it stamps the end time, derives the overall
// sentiment from the stored metrics, writes the summary and drops the live
// session. outcome may be nil.
func (c *Coordinator) EndCall(ctx context.Context, callID string, outcome *types.CallOutcome) (EndResult, error) {
	call, err := c.store.GetCall(ctx, callID)
	if err != nil {
		return EndResult{}, fmt.Errorf("get call: %w", err)
	}

	turns, err := c.store.ListTurns(ctx, callID)
	if err != nil {
		return EndResult{}, fmt.Errorf("list turns: %w", err)
	}
	stored, err := c.store.ListMetrics(ctx, callID)
	if err != nil {
		return EndResult{}, fmt.Errorf("list metrics: %w", err)
	}

	end := time.Now().UTC()
	duration := int(end.Sub(call.StartTime).Seconds())
	if duration < 0 {
		duration = 0
	}
	update := types.CallUpdate{
		EndTime:         &end,
		DurationSeconds: &duration,
		Outcome:         outcome,
	}
	if avg, ok := emotion.Average(stored); ok {
		sentiment := emotion.OverallSentiment(avg)
		update.OverallSentiment = &sentiment
	}

	// the prompt reads duration, outcome and sentiment off the call
	pending := call
	update.Apply(&pending)
	summary := c.summaries.Generate(ctx, pending, turns, stored)
	update.Summary = &summary.Overview

	call, err = c.store.UpdateCall(ctx, callID, update)
	if err != nil {
		return EndResult{}, fmt.Errorf("update call: %w", err)
	}

	c.sessions.Remove(callID)
	c.Forget(callID)

	result := EndResult{Call: call, Summary: summary}
	c.publish(types.MessageTypeCallEnd, callID, result)

	c.logger.Info().
		Str("call_id", callID).
		Int("duration_seconds", duration).
		Int("turns", len(turns)).
		Msg("call ended")

	return result, nil
}
