// Package store persists analysis run history so batches started from the
// CLI and the upload API share one queryable record.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/notaops/fiscal-cli/internal/model"
)

// ErrRunNotFound reports that no run matches the requested ID.
var ErrRunNotFound = eris.New("run not found")

// RunFilter selects runs for listing.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Source       string          `json:"source,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store is the persistence interface for analysis runs.
type Store interface {
	CreateRun(ctx context.Context, source string) (*model.AnalysisRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.AnalysisRun, error)

	Migrate(ctx context.Context) error
	Close() error
}
