package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notaops/fiscal-cli/internal/analysis"
	"github.com/notaops/fiscal-cli/internal/archive"
	"github.com/notaops/fiscal-cli/internal/ingest"
	"github.com/notaops/fiscal-cli/internal/model"
	"github.com/notaops/fiscal-cli/internal/resilience"
	"github.com/notaops/fiscal-cli/internal/store"
)

var (
	analyzeSource  string
	analyzeDest    string
	analyzeCopy    string
	analyzeWorkers int
	analyzeXLSX    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a batch of fiscal XML files",
	Long:  "Reads XMLs from a directory, ZIP archive, or ftp:// URL, classifies each document, reports numbering gaps per series, copies requested documents, and zips everything into the destination directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Flags override config.
		if analyzeSource != "" {
			cfg.Analyze.Source = analyzeSource
		}
		if analyzeDest != "" {
			cfg.Analyze.Dest = analyzeDest
		}
		if cmd.Flags().Changed("copy") {
			cfg.Analyze.CopyNumbers = analyzeCopy
		}
		if cmd.Flags().Changed("workers") {
			cfg.Analyze.Workers = analyzeWorkers
		}
		if cmd.Flags().Changed("xlsx") {
			cfg.Reports.XLSX = analyzeXLSX
		}
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		run, err := st.CreateRun(ctx, cfg.Analyze.Source)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		src, err := ingest.FromPath(cfg.Analyze.Source, ftpOptions())
		if err != nil {
			markFailed(st, run.ID, err)
			return err
		}

		files, err := src.Load(ctx)
		if err != nil {
			markFailed(st, run.ID, err)
			return eris.Wrap(err, "load source")
		}

		job := analysis.Job{
			Files:       files,
			CopyNumbers: analysis.ParseCopyNumbers(cfg.Analyze.CopyNumbers),
			DestDir:     cfg.Analyze.Dest,
			Source:      src.Describe(),
			RunID:       run.ID,
		}
		result, zipPath, err := runAnalysis(ctx, st, run.ID, job)
		if err != nil {
			markFailed(st, run.ID, err)
			return err
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", run.ID),
			zap.String("archive", zipPath),
			zap.Int("files", len(result.Documents)),
			zap.Int("copied", result.FilesCopied),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":        run.ID,
			"archive":       zipPath,
			"summary":       result.SummaryPath,
			"files":         len(result.Documents),
			"files_copied":  result.FilesCopied,
			"files_error":   result.FilesError,
			"status_totals": result.StatusTotals,
		})
	},
}

// runAnalysis executes the job, archives the destination directory, and
// records the outcome on the run row. Shared by the analyze command and the
// upload endpoint.
func runAnalysis(ctx context.Context, st store.Store, runID string, job analysis.Job) (*analysis.Result, string, error) {
	if err := st.UpdateRunStatus(ctx, runID, model.RunStatusProcessing); err != nil {
		return nil, "", err
	}

	runner := analysis.NewRunner(cfg.Analyze.Workers, cfg.Reports.XLSX)
	res, err := runner.Run(ctx, job)
	if err != nil {
		return nil, "", err
	}

	zipPath, err := archive.Create(job.DestDir, time.Now())
	if err != nil {
		return nil, "", err
	}

	if err := st.CompleteRun(ctx, runID, &model.RunResult{
		FilesProcessed: len(res.Documents),
		FilesWithError: res.FilesError,
		FilesCopied:    res.FilesCopied,
		StatusTotals:   res.StatusTotals,
		ArchivePath:    zipPath,
		OutputDir:      job.DestDir,
		DurationMS:     res.Duration.Milliseconds(),
	}); err != nil {
		return nil, "", eris.Wrap(err, "complete run")
	}
	return res, zipPath, nil
}

// markFailed records a failure on the run row. It uses a fresh context so
// the update still lands when the run context was cancelled.
func markFailed(st store.Store, runID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.FailRun(ctx, runID, cause.Error()); err != nil {
		zap.L().Error("record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}

func ftpOptions() ingest.Options {
	return ingest.Options{
		FTPUser:     cfg.FTP.User,
		FTPPassword: cfg.FTP.Password,
		FTPTimeout:  time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
		Retry:       resilience.RetryConfig{MaxAttempts: cfg.FTP.MaxRetries},
	}
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSource, "source", "", "XML source: directory, .zip, .xml, or ftp:// URL")
	analyzeCmd.Flags().StringVar(&analyzeDest, "dest", "", "destination directory for reports and copies")
	analyzeCmd.Flags().StringVar(&analyzeCopy, "copy", "", "comma-separated document numbers to copy")
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0, "extraction workers (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeXLSX, "xlsx", false, "also write the detail report as XLSX")
	rootCmd.AddCommand(analyzeCmd)
}
