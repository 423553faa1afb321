package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// RunParams are the user-supplied parameters for one pipeline run.
type RunParams struct {
	Disease           string `json:"disease"`
	MaxTrials         int    `json:"max_trials"`
	YearsBack         int    `json:"years_back"`
	IndustryOnly      bool   `json:"industry_only"`
	FinancialAnalysis bool   `json:"financial_analysis"`
}

// RunRecord tracks a single end-to-end pipeline execution. It is created
// when a run is submitted and mutated only through the run registry.
type RunRecord struct {
	ID           string            `json:"id"`
	Params       RunParams         `json:"params"`
	Status       RunStatus         `json:"status"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Error        string            `json:"error,omitempty"`
	StorageError string            `json:"storage_error,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	Files        map[string]string `json:"files,omitempty"` // logical path -> download URL
}

// Terminal reports whether the run has finished, successfully or not.
func (r *RunRecord) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusError
}
