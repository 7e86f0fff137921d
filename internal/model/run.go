package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusProcessing RunStatus = "processing"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// AnalysisRun is one recorded analysis job, whether started from the CLI or
// the upload API.
type AnalysisRun struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a completed run.
type RunResult struct {
	FilesProcessed int            `json:"files_processed"`
	FilesWithError int            `json:"files_with_error"`
	FilesCopied    int            `json:"files_copied"`
	StatusTotals   map[string]int `json:"status_totals,omitempty"`
	ArchivePath    string         `json:"archive_path,omitempty"`
	OutputDir      string         `json:"output_dir,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
}
