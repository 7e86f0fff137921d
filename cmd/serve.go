package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/notaops/fiscal-cli/internal/analysis"
	"github.com/notaops/fiscal-cli/internal/archive"
	"github.com/notaops/fiscal-cli/internal/config"
	"github.com/notaops/fiscal-cli/internal/model"
	"github.com/notaops/fiscal-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload/analyze HTTP server",
	Long:  "Accepts multipart uploads of XML or ZIP batches on POST /api/analyze, returns the result archive, and exposes run history under /api/runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
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

		// TODO: sweep job_ directories older than a few days; uploads
		// accumulate under base_dir until then.
		if err := os.MkdirAll(cfg.Server.BaseDir, 0o755); err != nil {
			return eris.Wrapf(err, "create base dir %s", cfg.Server.BaseDir)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newServer(st, cfg).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("base_dir", cfg.Server.BaseDir),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// server carries the dependencies of the HTTP handlers.
type server struct {
	st      store.Store
	cfg     *config.Config
	limiter *rate.Limiter
}

func newServer(st store.Store, cfg *config.Config) *server {
	return &server{
		st:      st,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.Server.RatePerSecond), cfg.Server.RateBurst),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.With(s.throttle).Post("/analyze", s.handleAnalyze)
		r.Get("/runs", s.handleRunsList)
		r.Get("/runs/{id}", s.handleRunsGet)
		r.Get("/runs/{id}/download", s.handleRunsDownload)
	})
	return r
}

// throttle applies the global upload rate limit.
func (s *server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Servidor de análise de XMLs ativo.")
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAnalyze runs a full analysis over the uploaded batch and responds
// with the result archive. XML parts are taken as-is, ZIP parts expanded in
// memory, anything else skipped with a warning.
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Server.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload excede o limite de %d MB", s.cfg.Server.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "Nenhum arquivo foi enviado.")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "Nenhum arquivo foi enviado.")
		return
	}

	files := collectUploads(headers)
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "Nenhum arquivo XML válido foi enviado.")
		return
	}

	copyNumbers := analysis.ParseCopyNumbers(r.FormValue("numeros"))

	run, err := s.st.CreateRun(r.Context(), fmt.Sprintf("upload (%d arquivos)", len(files)))
	if err != nil {
		zap.L().Error("create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno no job.")
		return
	}

	jobDir, err := newJobDir(s.cfg.Server.BaseDir)
	if err != nil {
		zap.L().Error("create job dir", zap.String("run_id", run.ID), zap.Error(err))
		markFailed(s.st, run.ID, err)
		writeError(w, http.StatusInternalServerError, "Erro interno no job.")
		return
	}

	zap.L().Info("upload analysis started",
		zap.String("run_id", run.ID),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("job_dir", jobDir),
		zap.Int("files", len(files)),
	)

	res, zipPath, err := runAnalysis(r.Context(), s.st, run.ID, analysis.Job{
		Files:       files,
		CopyNumbers: copyNumbers,
		DestDir:     jobDir,
		Source:      run.Source,
		RunID:       run.ID,
	})
	if err != nil {
		zap.L().Error("upload analysis failed", zap.String("run_id", run.ID), zap.Error(err))
		markFailed(s.st, run.ID, err)
		writeError(w, http.StatusInternalServerError, "Erro interno no job.")
		return
	}

	zap.L().Info("upload analysis complete",
		zap.String("run_id", run.ID),
		zap.Int("files", len(res.Documents)),
		zap.Int("copied", res.FilesCopied),
	)

	w.Header().Set("X-Run-ID", run.ID)
	w.Header().Set("Content-Disposition", `attachment; filename="resultados.zip"`)
	http.ServeFile(w, r, zipPath)
}

func (s *server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Source: r.URL.Query().Get("source"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	runs, err := s.st.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []model.AnalysisRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleRunsGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.st.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleRunsDownload(w http.ResponseWriter, r *http.Request) {
	run, err := s.st.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if run.Result == nil || run.Result.ArchivePath == "" {
		writeError(w, http.StatusNotFound, "run has no archive")
		return
	}
	if _, err := os.Stat(run.Result.ArchivePath); err != nil {
		writeError(w, http.StatusNotFound, "archive no longer available")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="resultados.zip"`)
	http.ServeFile(w, r, run.Result.ArchivePath)
}

// collectUploads reads the multipart file parts into the name-to-bytes batch.
// Unreadable or non-XML parts are logged and skipped.
func collectUploads(headers []*multipart.FileHeader) map[string][]byte {
	files := make(map[string][]byte)
	for _, fh := range headers {
		name := filepath.Base(fh.Filename)
		if name == "." || name == string(filepath.Separator) || name == "" {
			continue
		}

		f, err := fh.Open()
		if err != nil {
			zap.L().Warn("upload: skipping unreadable part", zap.String("file", fh.Filename), zap.Error(err))
			continue
		}
		data, err := io.ReadAll(f)
		f.Close() //nolint:errcheck,gosec
		if err != nil {
			zap.L().Warn("upload: skipping unreadable part", zap.String("file", fh.Filename), zap.Error(err))
			continue
		}

		switch strings.ToLower(filepath.Ext(name)) {
		case ".xml":
			files[name] = data
		case ".zip":
			entries, err := archive.ExtractXML(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				zap.L().Warn("upload: skipping unreadable zip", zap.String("file", name), zap.Error(err))
				continue
			}
			for n, b := range entries {
				files[n] = b
			}
		default:
			zap.L().Warn("upload: skipping non-xml file", zap.String("file", name))
		}
	}
	return files
}

// newJobDir creates an isolated working directory for one upload run.
func newJobDir(baseDir string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", eris.Wrap(err, "serve: job id")
	}
	dir := filepath.Join(baseDir, "job_"+hex.EncodeToString(buf))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "serve: create job dir %s", dir)
	}
	return dir, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
