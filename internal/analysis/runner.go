// Package analysis drives a fiscal XML batch end to end: parallel
// extraction, status classification, selective copying, and report
// generation into a job directory.
package analysis

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notaops/fiscal-cli/internal/model"
	"github.com/notaops/fiscal-cli/internal/nfe"
)

const defaultWorkers = 8

// Job is one analysis request: the input set plus where the results go.
type Job struct {
	// Files maps source name to raw XML bytes. Names must be unique within
	// the job; they become the arquivo_origem column of the reports.
	Files map[string][]byte
	// CopyNumbers selects documents for copying by their starting number.
	// Empty means copy nothing.
	CopyNumbers map[int]struct{}
	// DestDir is the job directory that receives reports and copies.
	DestDir string
	// Source describes where the batch came from, for the report header.
	Source string
	// RunID labels the manifest when the job belongs to a stored run.
	RunID string
	// Now stamps the reports; the zero value means time.Now(). Fixing it
	// makes repeated runs over the same input byte-identical.
	Now time.Time
}

// Result is everything one analysis run produced.
type Result struct {
	Documents    []model.Document
	Summary      string
	SummaryPath  string
	CSVPath      string
	XLSXPath     string
	ManifestPath string
	CopyDir      string
	FilesCopied  int
	FilesError   int
	StatusTotals map[string]int
	Duration     time.Duration
}

// Runner executes analysis jobs with a bounded worker pool.
type Runner struct {
	workers   int
	writeXLSX bool
}

// NewRunner returns a Runner with the given parallelism. Non-positive
// workers fall back to the default. writeXLSX additionally emits the detail
// report as a workbook.
func NewRunner(workers int, writeXLSX bool) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{workers: workers, writeXLSX: writeXLSX}
}

// Run executes one job: extract every file in parallel, apply the copy
// selection, and write the report artifacts under job.DestDir. Per-document
// problems are recorded on the documents themselves; only batch-level
// failures (empty input, unusable destination, cancellation) return an
// error.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()

	if len(job.Files) == 0 {
		return nil, eris.New("analysis: no XML files to process")
	}
	if job.DestDir == "" {
		return nil, eris.New("analysis: destination directory not set")
	}
	copyDir := filepath.Join(job.DestDir, CopySubdir)
	if err := os.MkdirAll(copyDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "analysis: create copy directory %s", copyDir)
	}

	docs, err := r.extractAll(ctx, job.Files)
	if err != nil {
		return nil, err
	}

	copied := copySelected(docs, job.Files, job.CopyNumbers, copyDir)

	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceName < docs[j].SourceName })

	now := job.Now
	if now.IsZero() {
		now = time.Now()
	}

	res := &Result{
		Documents:    docs,
		CopyDir:      copyDir,
		FilesCopied:  copied,
		StatusTotals: StatusTotals(docs),
	}
	for i := range docs {
		if docs[i].HasErrors() {
			res.FilesError++
		}
	}

	res.Summary = BuildSummary(docs, SummaryMeta{Source: job.Source, Timestamp: now})
	res.SummaryPath = filepath.Join(job.DestDir, SummaryName)
	if err := os.WriteFile(res.SummaryPath, []byte(res.Summary), 0o644); err != nil {
		return nil, eris.Wrapf(err, "analysis: write summary %s", res.SummaryPath)
	}

	rows := DetailRows(docs)
	res.CSVPath = filepath.Join(job.DestDir, CSVName)
	if err := WriteCSV(res.CSVPath, rows); err != nil {
		return nil, err
	}
	if r.writeXLSX {
		res.XLSXPath = filepath.Join(job.DestDir, XLSXName)
		if err := WriteXLSX(res.XLSXPath, rows); err != nil {
			return nil, err
		}
	}

	artifacts := []string{SummaryName, CSVName}
	if res.XLSXPath != "" {
		artifacts = append(artifacts, XLSXName)
	}
	res.ManifestPath = filepath.Join(job.DestDir, ManifestName)
	if err := WriteManifest(res.ManifestPath, Manifest{
		RunID:        job.RunID,
		GeneratedAt:  now,
		Source:       job.Source,
		Files:        len(docs),
		FilesError:   res.FilesError,
		FilesCopied:  copied,
		StatusTotals: res.StatusTotals,
		Artifacts:    artifacts,
	}); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	zap.L().Info("analysis: job complete",
		zap.Int("files", len(docs)),
		zap.Int("errors", res.FilesError),
		zap.Int("copied", copied),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// extractAll parses every file concurrently, each worker writing its own
// slot. Extraction never fails a file, so the only error out of here is
// cancellation.
func (r *Runner) extractAll(ctx context.Context, files map[string][]byte) ([]model.Document, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	docs := make([]model.Document, len(names))
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i] = nfe.Extract(name, files[name])
			zap.L().Debug("analysis: extracted",
				zap.String("file", name),
				zap.String("type", string(docs[i].Type)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analysis: extraction aborted")
	}
	return docs, nil
}
