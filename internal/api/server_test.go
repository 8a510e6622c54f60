package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/printmanager/internal/cache"
	"github.com/local/printmanager/internal/colorclass"
	"github.com/local/printmanager/internal/dispatcher"
	"github.com/local/printmanager/internal/docmeta"
	"github.com/local/printmanager/internal/fetch"
	"github.com/local/printmanager/internal/pdftest"
	"github.com/local/printmanager/internal/procexec"
	"github.com/local/printmanager/internal/statuscheck"
)

const inkOut = "0.30000 0.00000 0.10000 0.20000 CMYK OK\n" +
	"0.00000 0.00000 0.00000 0.20000 CMYK OK\n" +
	"0.00000 0.00000 0.00000 0.20000 CMYK OK\n" +
	"0.00000 0.00000 0.00000 0.00000 CMYK OK\n"

type staticStatus struct{}

func (staticStatus) Summary(context.Context) statuscheck.Summary {
	return statuscheck.Summary{Ghostscript: statuscheck.Status{OK: true, Message: "Available"}}
}

type env struct {
	srv   *httptest.Server
	cache *cache.Cache
	doc   string
}

func newEnv(t *testing.T, toolPresent bool) *env {
	t.Helper()
	dir := t.TempDir()
	doc, err := pdftest.Write(dir, "four.pdf", pdftest.Options{Pages: pdftest.Uniform(4, pdftest.A4), Title: "Four"})
	require.NoError(t, err)

	var candidates []string
	if toolPresent {
		tool := filepath.Join(dir, "gs")
		require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o755))
		candidates = []string{tool}
	}
	runner := procexec.RunnerFunc(func(context.Context, string, ...string) (procexec.Result, error) {
		return procexec.Result{Stdout: []byte(inkOut)}, nil
	})
	reader := docmeta.NewReader()
	pool := dispatcher.New(dispatcher.Config{Concurrency: 1})
	pool.Start()
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	c := cache.New(cache.Options{
		Reader: reader,
		Analyzer: colorclass.New(colorclass.Options{
			Locator: colorclass.NewLocator(candidates, "gs-not-installed-for-tests"),
			Runner:  runner,
			Pages:   reader,
		}),
		Pool: pool,
	})
	resolver, err := fetch.NewResolver(fetch.Options{SpoolDir: filepath.Join(dir, "spool")})
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(Dependencies{Cache: c, Resolver: resolver, Status: staticStatus{}, UploadDir: filepath.Join(dir, "uploads")}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &env{srv: srv, cache: c, doc: doc}
}

func (e *env) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *env) load(t *testing.T) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/documents", map[string]any{"ref": e.doc})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	key, _ := body["key"].(string)
	require.NotEmpty(t, key)
	return key
}

func TestHealth(t *testing.T) {
	e := newEnv(t, true)
	resp, err := http.Get(e.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	e := newEnv(t, true)
	e.load(t)
	resp, body := e.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["documents"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, true, deps["ghostscript"].(map[string]any)["ok"])
}

func TestDocuments_LoadGetList(t *testing.T) {
	e := newEnv(t, true)
	key := e.load(t)

	resp, body := e.do(t, http.MethodGet, "/documents/"+key, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Four", body["title"])
	assert.Equal(t, float64(4), body["page_count"])
	assert.Equal(t, "unknown", body["color"].(map[string]any)["state"])
	assert.Equal(t, float64(0), body["color_page_count"])

	resp, body = e.do(t, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["documents"], 1)

	// loading twice is idempotent
	assert.Equal(t, key, e.load(t))
}

func TestDocuments_InvalidInput(t *testing.T) {
	e := newEnv(t, true)
	resp, body := e.do(t, http.MethodPost, "/documents", map[string]any{"ref": filepath.Join(t.TempDir(), "nope.pdf")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", body["category"])

	resp, _ = e.do(t, http.MethodPost, "/documents", map[string]any{"ref": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/documents/ffff", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyze_StartsThenCached(t *testing.T) {
	e := newEnv(t, true)
	key := e.load(t)

	resp, body := e.do(t, http.MethodPost, "/documents/"+key+"/analyze", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "started", body["enrich"])
	e.cache.Wait()

	resp, body = e.do(t, http.MethodPost, "/documents/"+key+"/analyze", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cached", body["enrich"])
	assert.Equal(t, float64(1), body["color_page_count"])
	assert.Equal(t, float64(3), body["mono_page_count"])

	resp, body = e.do(t, http.MethodPost, "/quote", map[string]any{"keys": []string{key}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "14.00", body["total"])
	assert.Equal(t, false, body["assumed_mono"])
}

func TestAnalyze_ToolAbsent(t *testing.T) {
	e := newEnv(t, false)
	key := e.load(t)

	resp, body := e.do(t, http.MethodPost, "/documents/"+key+"/analyze", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unavailable", body["enrich"])
	assert.Equal(t, float64(0), body["color_page_count"])

	resp, body = e.do(t, http.MethodPost, "/quote", map[string]any{"keys": []string{key}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "8.00", body["total"])
	assert.Equal(t, true, body["assumed_mono"])
}

func TestAnalyze_ChangedFileConflicts(t *testing.T) {
	e := newEnv(t, true)
	key := e.load(t)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(e.doc, later, later))

	resp, body := e.do(t, http.MethodPost, "/documents/"+key+"/analyze", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "stale", body["category"])

	_, body = e.do(t, http.MethodGet, "/documents/"+key, nil)
	assert.Equal(t, "unknown", body["color"].(map[string]any)["state"])

	newKey := e.load(t)
	assert.NotEqual(t, key, newKey)
	resp, body = e.do(t, http.MethodPost, "/documents/"+newKey+"/analyze", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "started", body["enrich"])
	e.cache.Wait()
}

func TestAnalyze_UnknownKeyAndMethod(t *testing.T) {
	e := newEnv(t, true)
	resp, _ := e.do(t, http.MethodPost, "/documents/abc/analyze", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/documents/abc/analyze", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/documents/abc/other", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDelete(t *testing.T) {
	e := newEnv(t, true)
	key := e.load(t)

	resp, _ := e.do(t, http.MethodDelete, "/documents/"+key, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(t, http.MethodDelete, "/documents/"+key, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQuote_Errors(t *testing.T) {
	e := newEnv(t, true)
	resp, body := e.do(t, http.MethodPost, "/quote", map[string]any{"keys": []string{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", body["category"])

	resp, _ = e.do(t, http.MethodPost, "/quote", map[string]any{"keys": []string{"missing"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/quote", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUpload(t *testing.T) {
	e := newEnv(t, true)
	data, err := os.ReadFile(e.doc)
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "scan.pdf")
	require.NoError(t, err)
	_, _ = fw.Write(data)
	require.NoError(t, mw.WriteField("analyze", "true"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.srv.URL+"/documents/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "started", body["enrich"])
	assert.Contains(t, body["path"], "scan.pdf")
	e.cache.Wait()
}
