package types

// Trajectory is how a conversation's tone is moving
type Trajectory string

const (
	TrajectoryImproving    Trajectory = "improving"
	TrajectoryEscalating   Trajectory = "escalating"
	TrajectoryDeEscalating Trajectory = "de-escalating"
	TrajectoryStable       Trajectory = "stable"
)

// Valid reports whether t is one of the known trajectories
func (t Trajectory) Valid() bool {
	switch t {
	case TrajectoryImproving, TrajectoryEscalating, TrajectoryDeEscalating, TrajectoryStable:
		return true
	}
	return false
}

// ConversationContext is recomputed per chunk and never persisted
type ConversationContext struct {
	Trajectory Trajectory `json:"trajectory"`
	Topics     []string   `json:"topics"`
	Intent     string     `json:"intent"`
	Sentiment  Sentiment  `json:"sentiment"`
	Urgency    float64    `json:"urgency"`
}

// AgentPerformance lists what the agent did well and what to improve
type AgentPerformance struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// CallSummary is the post-call report
type CallSummary struct {
	Overview            string           `json:"overview"`
	KeyTopics           []string         `json:"keyTopics"`
	EmotionalTrajectory string           `json:"emotionalTrajectory"`
	CriticalMoments     []string         `json:"criticalMoments"`
	Outcome             string           `json:"outcome"`
	AgentPerformance    AgentPerformance `json:"agentPerformance"`
	Recommendations     []string         `json:"recommendations"`
}
