package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// SourceStats summarizes one adapter's contribution to a run.
type SourceStats struct {
	Source     string         `json:"source"`
	Fetched    int            `json:"fetched"`
	Normalized int            `json:"normalized"`
	Dropped    map[string]int `json:"dropped,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// DroppedTotal sums drops over all reasons.
func (s SourceStats) DroppedTotal() int {
	n := 0
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// RunSummary is the operator-facing outcome of a run.
type RunSummary struct {
	RunID        string          `json:"run_id"`
	Status       RunStatus       `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at,omitempty"`
	Sources      []SourceStats   `json:"sources"`
	Baseline     int             `json:"baseline"`
	Total        int             `json:"total"`
	New          int             `json:"new"`
	Merged       int             `json:"merged"`
	Tags         map[Channel]int `json:"tags"`
	Procedures   map[string]int  `json:"procedures,omitempty"`
	SnapshotPath string          `json:"snapshot_path,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Run is a ledger entry for one pipeline execution.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
