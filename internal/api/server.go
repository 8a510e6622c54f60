package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/printmanager/internal/cache"
	"github.com/local/printmanager/internal/docerr"
	"github.com/local/printmanager/internal/docmeta"
	"github.com/local/printmanager/internal/metrics"
	"github.com/local/printmanager/internal/pricing"
	"github.com/local/printmanager/internal/statuscheck"
)

// Resolver turns a document reference into a local path.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// StatusReporter summarizes external dependencies.
type StatusReporter interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
	Cache     *cache.Cache
	Estimator *pricing.Estimator
	Resolver  Resolver
	Status    StatusReporter
	// UploadDir receives multipart uploads. Defaults to "uploads".
	UploadDir string
}

type Server struct {
	deps Dependencies
}

func New(deps Dependencies) *Server {
	if deps.UploadDir == "" {
		deps.UploadDir = "uploads"
	}
	if deps.Estimator == nil {
		deps.Estimator = pricing.NewEstimator(nil)
	}
	return &Server{deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/upload", s.handleUpload)
	mux.HandleFunc("/documents/", s.handleDocument)
	mux.HandleFunc("/quote", s.handleQuote)
	mux.Handle("/metrics", metrics.Handler())
}

type documentReq struct {
	Ref     string `json:"ref"`
	Analyze bool   `json:"analyze"`
}

type documentResp struct {
	cache.DocumentMetadata
	ColorPageCount int    `json:"color_page_count"`
	MonoPageCount  int    `json:"mono_page_count"`
	Enrich         string `json:"enrich,omitempty"`
}

func newDocumentResp(d cache.DocumentMetadata, enrich string) documentResp {
	return documentResp{DocumentMetadata: d, ColorPageCount: d.ColorPageCount(), MonoPageCount: d.MonoPageCount(), Enrich: enrich}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	out := map[string]any{"documents": len(s.deps.Cache.List())}
	if s.deps.Status != nil {
		out["dependencies"] = s.deps.Status.Summary(r.Context())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs := s.deps.Cache.List()
		out := make([]documentResp, 0, len(docs))
		for _, d := range docs {
			out = append(out, newDocumentResp(d, ""))
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": out})
	case http.MethodPost:
		defer r.Body.Close()
		var req documentReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		path, err := s.deps.Resolver.Resolve(r.Context(), req.Ref)
		if err != nil {
			writeError(w, err)
			return
		}
		s.load(w, r, path, req.Analyze)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleUpload accepts multipart/form-data with a "file" field and an
// optional "analyze" flag.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	analyze := r.FormValue("analyze") == "on" || r.FormValue("analyze") == "true"

	if err := os.MkdirAll(s.deps.UploadDir, 0o755); err != nil {
		http.Error(w, "cannot create upload dir", http.StatusInternalServerError)
		return
	}
	name := uuid.NewString() + "_" + filepath.Base(hdr.Filename)
	dst := filepath.Join(s.deps.UploadDir, name)
	out, err := os.Create(dst)
	if err != nil {
		http.Error(w, "cannot save upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		_ = os.Remove(dst)
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	if err := out.Close(); err != nil {
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	log.Info().Str("file", dst).Int64("bytes", hdr.Size).Msg("document uploaded")
	s.load(w, r, dst, analyze)
}

func (s *Server) load(w http.ResponseWriter, r *http.Request, path string, analyze bool) {
	doc, err := s.deps.Cache.GetOrLoad(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}
	enrich := ""
	if analyze {
		st, err := s.deps.Cache.Enrich(r.Context(), path)
		if err != nil {
			log.Warn().Err(err).Str("key", string(doc.Key)).Msg("could not start color analysis")
		} else {
			enrich = st.String()
			doc, _ = s.deps.Cache.Get(doc.Key)
		}
	}
	writeJSON(w, http.StatusOK, newDocumentResp(doc, enrich))
}

// handleDocument serves /documents/{key} and /documents/{key}/analyze.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "analyze") {
		http.NotFound(w, r)
		return
	}
	key := docmeta.Key(parts[0])

	if len(parts) == 2 {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.analyze(w, r, key)
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, ok := s.deps.Cache.Get(key)
		if !ok {
			writeError(w, fmt.Errorf("%w: %s", docerr.ErrNotFound, key))
			return
		}
		writeJSON(w, http.StatusOK, newDocumentResp(doc, ""))
	case http.MethodDelete:
		if !s.deps.Cache.Remove(key) {
			writeError(w, fmt.Errorf("%w: %s", docerr.ErrNotFound, key))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// analyze enriches the exact version named by key. A file edited since that
// version was loaded is rejected; the client reloads it to get the new key.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request, key docmeta.Key) {
	doc, ok := s.deps.Cache.Get(key)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", docerr.ErrNotFound, key))
		return
	}
	cur, _, err := docmeta.Identify(doc.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if cur != key {
		writeError(w, fmt.Errorf("%w: %s is now %s", docerr.ErrStale, key, cur))
		return
	}
	st, err := s.deps.Cache.Enrich(r.Context(), doc.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusOK
	if st == cache.EnrichStarted {
		code = http.StatusAccepted
	}
	if d, ok := s.deps.Cache.Get(key); ok {
		doc = d
	}
	writeJSON(w, code, newDocumentResp(doc, st.String()))
}

type quoteReq struct {
	Keys []string `json:"keys"`
}

type quoteLine struct {
	Key           string `json:"key"`
	Path          string `json:"path"`
	Size          string `json:"size"`
	Pages         int    `json:"pages"`
	MonoPages     int    `json:"mono_pages"`
	ColorPages    int    `json:"color_pages"`
	AssumedMono   bool   `json:"assumed_mono"`
	MonoTier      int    `json:"mono_tier,omitempty"`
	ColorTier     int    `json:"color_tier,omitempty"`
	MonoSubtotal  string `json:"mono_subtotal"`
	ColorSubtotal string `json:"color_subtotal"`
	Total         string `json:"total"`
}

type quoteResp struct {
	Currency    string      `json:"currency"`
	Total       string      `json:"total"`
	AssumedMono bool        `json:"assumed_mono"`
	Lines       []quoteLine `json:"lines"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req quoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Keys) == 0 {
		writeError(w, fmt.Errorf("%w: no document keys", docerr.ErrInvalidInput))
		return
	}

	docs := make([]cache.DocumentMetadata, 0, len(req.Keys))
	for _, k := range req.Keys {
		d, ok := s.deps.Cache.Get(docmeta.Key(k))
		if !ok {
			writeError(w, fmt.Errorf("%w: %s", docerr.ErrNotFound, k))
			return
		}
		docs = append(docs, d)
	}
	q, err := s.deps.Estimator.Estimate(docs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResp(q))
}

func toQuoteResp(q pricing.Quote) quoteResp {
	out := quoteResp{Currency: q.Currency, Total: pricing.Format(q.Total), AssumedMono: q.Assumed, Lines: make([]quoteLine, 0, len(q.Lines))}
	for _, l := range q.Lines {
		out.Lines = append(out.Lines, quoteLine{
			Key:           string(l.Key),
			Path:          l.Path,
			Size:          string(l.Size),
			Pages:         l.Pages,
			MonoPages:     l.Mono,
			ColorPages:    l.Color,
			AssumedMono:   l.Assumed,
			MonoTier:      int(l.MonoTier),
			ColorTier:     int(l.ColorTier),
			MonoSubtotal:  pricing.Format(l.MonoSubtotal),
			ColorSubtotal: pricing.Format(l.ColorSubtotal),
			Total:         pricing.Format(l.Total),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	cat := docerr.Category(err)
	code := http.StatusInternalServerError
	switch cat {
	case "invalid_input":
		code = http.StatusBadRequest
	case "not_found":
		code = http.StatusNotFound
	case "stale":
		code = http.StatusConflict
	case "timeout":
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "category": cat})
}
