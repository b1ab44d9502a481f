package observability

import "sync"

// Stage identifies a workflow transition outcome for counting.
type Stage string

const (
	StageClassified           Stage = "classified"
	StageClassificationFailed Stage = "classification_failed"
	StageMatched              Stage = "matched"
	StageManualAssignment     Stage = "needs_manual_assignment"
	StageMatchingFailed       Stage = "matching_failed"
	StageAssigned             Stage = "assigned"
	StageNotified             Stage = "notified"
	StageSkipped              Stage = "skipped"
)

// Metrics provides basic in-memory counters for workflow transitions.
type Metrics struct {
	mu         sync.Mutex
	stageCount map[Stage]int64
	errorCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		stageCount: make(map[Stage]int64),
		errorCount: make(map[string]int64),
	}
}

// RecordStage increments the counter for a completed transition.
func (m *Metrics) RecordStage(stage Stage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageCount[stage]++
}

// RecordError increments error counters keyed by component and code.
func (m *Metrics) RecordError(component, code string) {
	if m == nil {
		return
	}
	key := component + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// StageCount returns the current count for a transition outcome.
func (m *Metrics) StageCount(stage Stage) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stageCount[stage]
}
