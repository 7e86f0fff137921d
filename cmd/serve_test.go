package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notaops/fiscal-cli/internal/config"
	"github.com/notaops/fiscal-cli/internal/model"
	"github.com/notaops/fiscal-cli/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Analyze.Workers = 2
	c.Store.Driver = "sqlite"
	c.Server.Port = 8080
	c.Server.BaseDir = t.TempDir()
	c.Server.MaxUploadMB = 64
	c.Server.RatePerSecond = 1000
	c.Server.RateBurst = 1000
	c.Server.CORSOrigins = []string{"*"}
	return c
}

// newTestServer wires the real router against a throwaway SQLite store.
// runAnalysis reads the package-level cfg, so the test config is installed
// there too.
func newTestServer(t *testing.T, mutate ...func(*config.Config)) (http.Handler, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	c := testConfig(t)
	for _, m := range mutate {
		m(c)
	}
	cfg = c

	return newServer(st, c).routes(), st
}

func uploadXML(num string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe">
  <NFe><infNFe><ide><nNF>%s</nNF><serie>1</serie><mod>55</mod><dhEmi>2026-08-12T10:22:33-03:00</dhEmi></ide></infNFe></NFe>
  <protNFe><infProt><chNFe>35260812345678000195550010000000011000000017</chNFe><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo></infProt></protNFe>
</nfeProc>`, num))
}

// multipartUpload assembles a files+numeros form body.
func multipartUpload(t *testing.T, numeros string, parts map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range parts {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	if numeros != "" {
		require.NoError(t, w.WriteField("numeros", numeros))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestIndexEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Servidor de análise de XMLs ativo.")
}

func TestAnalyzeUpload(t *testing.T) {
	h, st := newTestServer(t)

	body, ctype := multipartUpload(t, "101", map[string][]byte{
		"nf_100.xml": uploadXML("100"),
		"nf_101.xml": uploadXML("101"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, `attachment; filename="resultados.zip"`, rr.Header().Get("Content-Disposition"))

	runID := rr.Header().Get("X-Run-ID")
	require.NotEmpty(t, runID)

	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["relatorio_sumario.txt"])
	assert.True(t, names["relatorio_detalhado.csv"])
	assert.True(t, names["manifest.yaml"])
	assert.True(t, names["xmls_copiados/nf_101.xml"], "requested number should be copied")

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 2, run.Result.FilesProcessed)
	assert.Equal(t, 1, run.Result.FilesCopied)
	assert.FileExists(t, run.Result.ArchivePath)
}

func TestAnalyzeUploadZipBatch(t *testing.T) {
	h, st := newTestServer(t)

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	for _, num := range []string{"200", "201"} {
		fw, err := zw.Create("nf_" + num + ".xml")
		require.NoError(t, err)
		_, err = fw.Write(uploadXML(num))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	body, ctype := multipartUpload(t, "", map[string][]byte{"lote.zip": zbuf.Bytes()})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	run, err := st.GetRun(context.Background(), rr.Header().Get("X-Run-ID"))
	require.NoError(t, err)
	require.NotNil(t, run.Result)
	assert.Equal(t, 2, run.Result.FilesProcessed)
}

func TestAnalyzeUploadSkipsJunkParts(t *testing.T) {
	h, st := newTestServer(t)

	body, ctype := multipartUpload(t, "", map[string][]byte{
		"nf_300.xml": uploadXML("300"),
		"notas.txt":  []byte("not xml"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	run, err := st.GetRun(context.Background(), rr.Header().Get("X-Run-ID"))
	require.NoError(t, err)
	require.NotNil(t, run.Result)
	assert.Equal(t, 1, run.Result.FilesProcessed)
}

func TestAnalyzeUploadNoFiles(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Nenhum arquivo foi enviado.")
}

func TestAnalyzeUploadNoValidXML(t *testing.T) {
	h, _ := newTestServer(t)

	body, ctype := multipartUpload(t, "", map[string][]byte{"notas.txt": []byte("not xml")})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Nenhum arquivo XML válido foi enviado.")
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	h, _ := newTestServer(t, func(c *config.Config) {
		c.Server.MaxUploadMB = 1
	})

	big := bytes.Repeat([]byte("a"), 2<<20)
	body, ctype := multipartUpload(t, "", map[string][]byte{"grande.xml": big})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Contains(t, rr.Body.String(), "limite")
}

func TestAnalyzeUploadRateLimited(t *testing.T) {
	h, _ := newTestServer(t, func(c *config.Config) {
		c.Server.RatePerSecond = 0.0001
		c.Server.RateBurst = 1
	})

	for i, want := range []int{http.StatusBadRequest, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, "request %d", i)
	}
}

func TestRunsListEndpoint(t *testing.T) {
	h, st := newTestServer(t)
	ctx := context.Background()

	run1, err := st.CreateRun(ctx, "/lote/a")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run1.ID, &model.RunResult{FilesProcessed: 3}))
	_, err = st.CreateRun(ctx, "/lote/b")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.AnalysisRun
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/runs?status=complete", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run1.ID, runs[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRunsGetEndpoint(t *testing.T) {
	h, st := newTestServer(t)

	run, err := st.CreateRun(context.Background(), "/lote/a")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got model.AnalysisRun
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/runs/nao-existe", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestRunsDownloadEndpoint(t *testing.T) {
	h, st := newTestServer(t)
	ctx := context.Background()

	zipPath := filepath.Join(t.TempDir(), "resultados_20260825_090000.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	fw, err := zw.Create("relatorio_sumario.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	run, err := st.CreateRun(ctx, "/lote/a")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, &model.RunResult{ArchivePath: zipPath}))

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/download", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="resultados.zip"`, rr.Header().Get("Content-Disposition"))
	_, err = zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	assert.NoError(t, err)

	// A run that never completed has no archive.
	pending, err := st.CreateRun(ctx, "/lote/b")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+pending.ID+"/download", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run has no archive")

	// A completed run whose archive was cleaned up.
	stale, err := st.CreateRun(ctx, "/lote/c")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, stale.ID, &model.RunResult{ArchivePath: filepath.Join(t.TempDir(), "sumiu.zip")}))
	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+stale.ID+"/download", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "archive no longer available")
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://exemplo.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
