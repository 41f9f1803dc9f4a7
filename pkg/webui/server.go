// Package webui serves the chat page and the query API.
package webui

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"batchrag/pkg/httputil"
	"batchrag/pkg/httputil/middleware"
	"batchrag/pkg/rag"
)

//go:embed index.html
var indexHTML string

var kValues = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

// Engine answers queries against the indexed documents.
type Engine interface {
	Ask(ctx context.Context, query string, k int) (rag.Answer, error)
}

// Config holds web server settings.
type Config struct {
	ListenAddr string
	// ImagesDir, when set, is served under /images/.
	ImagesDir string
	// DefaultK is the retrieval depth when the client does not pick one.
	DefaultK int
	// CacheTTL enables answer caching when positive.
	CacheTTL time.Duration
}

// Server renders the chat page and answers API queries.
type Server struct {
	engine Engine
	router *httputil.Router
	tmpl   *template.Template
	cache  *middleware.Cache
	cfg    Config
	logger *zap.Logger
}

// New builds a Server with its routes registered.
func New(engine Engine, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}

	s := &Server{
		engine: engine,
		router: httputil.NewRouter(),
		tmpl: template.Must(template.New("index").
			Funcs(template.FuncMap{"dataURI": dataURI}).
			Parse(indexHTML)),
		cfg:    cfg,
		logger: logger,
	}
	if cfg.CacheTTL > 0 {
		s.cache = middleware.NewCache()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: s.logger}))
	s.router.Use(middleware.CORSWithOptions(nil))

	s.router.Handle("GET /{$}", http.HandlerFunc(s.handleIndex))
	s.router.Handle("POST /{$}", http.HandlerFunc(s.handleForm))
	s.router.Handle("POST /api/query", http.HandlerFunc(s.handleQuery))
	s.router.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.Text(w, http.StatusOK, "ok")
	}))
	if s.cfg.ImagesDir != "" {
		s.router.Handle("GET /images/", http.StripPrefix("/images", middleware.Static(s.cfg.ImagesDir)))
	}
}

// pageData feeds the index template.
type pageData struct {
	Query   string
	K       int
	KValues []int
	Answer  string
	Sources []rag.Source
	Asked   bool
	Error   string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.render(w, pageData{K: s.cfg.DefaultK, KValues: kValues})
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	query := strings.TrimSpace(r.FormValue("query"))
	k := parseK(r.FormValue("k"), s.cfg.DefaultK)

	data := pageData{Query: query, K: k, KValues: kValues}
	if query == "" {
		s.render(w, data)
		return
	}

	answer, err := s.ask(r.Context(), query, k)
	if err != nil {
		s.logger.Error("query failed", zap.String("query", query), zap.Error(err))
		data.Error = "Something went wrong answering your question. Please try again."
		s.render(w, data)
		return
	}

	data.Asked = true
	data.Answer = answer.Text
	data.Sources = answer.Sources
	s.render(w, data)
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := httputil.BindOrError(r, w, &req); err != nil {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		httputil.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K <= 0 {
		req.K = s.cfg.DefaultK
	}

	answer, err := s.ask(r.Context(), req.Query, req.K)
	if err != nil {
		s.logger.Error("query failed", zap.String("query", req.Query), zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "failed to answer query")
		return
	}
	httputil.JSON(w, http.StatusOK, answer)
}

func (s *Server) ask(ctx context.Context, query string, k int) (rag.Answer, error) {
	key := fmt.Sprintf("%d|%s", k, query)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			if answer, ok := cached.(rag.Answer); ok {
				return answer, nil
			}
		}
	}

	answer, err := s.engine.Ask(ctx, query, k)
	if err != nil {
		return rag.Answer{}, err
	}
	if s.cache != nil {
		s.cache.Set(key, answer, s.cfg.CacheTTL)
	}
	return answer, nil
}

func (s *Server) render(w http.ResponseWriter, data pageData) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		s.logger.Error("failed to render page", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	httputil.HTML(w, http.StatusOK, buf.String())
}

// Handler returns the routing handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router.Handler()
}

// ListenAndServe starts the server on the configured address.
func (s *Server) ListenAndServe() error {
	s.logger.Info("web ui listening", zap.String("addr", s.cfg.ListenAddr))
	return s.router.ListenAndServe(s.cfg.ListenAddr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}

func parseK(raw string, def int) int {
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 || k > 10 {
		return def
	}
	return k
}

// dataURI renders base16 image bytes as an inline data URI, empty on
// bad input.
func dataURI(encoded string) template.URL {
	data, err := hex.DecodeString(encoded)
	if err != nil || len(data) == 0 {
		return ""
	}
	mimeType := http.DetectContentType(data)
	return template.URL("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data))
}
