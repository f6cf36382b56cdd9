package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/goviz/cache"
	"github.com/caffeineduck/goviz/config"
	"github.com/caffeineduck/goviz/viz"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for rendering",
		Long: `Start an HTTP server that renders graphs.

Endpoints:
  POST   /render    Render {"src": "..."} or {"graph": {...}}, returns a result
  GET    /formats   List output formats
  GET    /engines   List layout engines
  GET    /version   Graphviz version
  GET    /health    Health check

Successful results are cached (see [cache] in the config file).`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringP("addr", "a", "", "Address to listen on (default from config: :8080)")
	cmd.Flags().Duration("timeout", 0, "Default render timeout (default from config: 30s)")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size")
	return cmd
}

type renderRequest struct {
	Src     string            `json:"src,omitempty"`
	Graph   *viz.Graph        `json:"graph,omitempty"`
	Formats []string          `json:"formats,omitempty"`
	Options viz.RenderOptions `json:"options"`
	Timeout string            `json:"timeout,omitempty"`
}

func (req renderRequest) input() (viz.Input, error) {
	switch {
	case req.Src != "" && req.Graph != nil:
		return nil, errors.New("src and graph are mutually exclusive")
	case req.Src != "":
		return viz.Text(req.Src), nil
	case req.Graph != nil:
		return req.Graph, nil
	default:
		return nil, errors.New("src or graph required")
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// server serves render requests from one engine instance.
type server struct {
	viz     *viz.Viz
	cache   cache.Cache
	ttl     time.Duration
	timeout time.Duration
	maxBody int64
	format  string
	log     *log.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/render", s.handleRender)
	r.Get("/formats", s.handleList("formats", s.viz.Formats))
	r.Get("/engines", s.handleList("engines", s.viz.Engines))
	r.Get("/version", s.handleVersion)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

type requestIDKey struct{}

// requestID tags each request with the caller's X-Request-ID or a fresh
// UUID, and echoes it in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond))
	})
}

func (s *server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	in, err := req.input()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	formats := req.Formats
	if len(formats) == 0 {
		formats = []string{req.Options.Format}
		if formats[0] == "" {
			formats[0] = s.format
		}
	}

	timeout := s.timeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid timeout: %w", err))
			return
		}
		timeout = d
	}

	ctx := r.Context()
	key, err := cache.Key(in, formats, req.Options)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var res viz.Result
	switch err := cache.GetJSON(ctx, s.cache, key, &res); {
	case err == nil:
		w.Header().Set("X-Cache", "hit")
		writeJSON(w, http.StatusOK, res)
		return
	case !errors.Is(err, cache.ErrCacheMiss):
		s.log.Warn("cache read failed", "id", requestIDFrom(ctx), "err", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err = s.viz.RenderFormats(ctx, in, formats, viz.WithOptions(req.Options))
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	w.Header().Set("X-Cache", "miss")
	if res.Status != viz.StatusSuccess {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	if err := cache.SetJSON(r.Context(), s.cache, key, res, s.ttl); err != nil {
		s.log.Warn("cache write failed", "id", requestIDFrom(ctx), "err", err)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleList(name string, list func(context.Context) ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := list(r.Context())
		if err != nil {
			s.writeError(w, r, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{name: names})
	}
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.viz.Version(r.Context())
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

// statusFor maps render errors to HTTP status codes.
func statusFor(err error) int {
	var imgErr *viz.ImageError
	switch {
	case errors.As(err, &imgErr), errors.Is(err, viz.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, viz.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	id := requestIDFrom(r.Context())
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "id", id, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// openCache builds the result cache selected by the configuration.
func openCache(ctx context.Context, a *app) (cache.Cache, error) {
	if a.noCache {
		return cache.NewNullCache(), nil
	}
	switch a.cfg.Cache.Kind {
	case config.CacheFile:
		return cache.NewFileCache(a.cfg.CacheDir())
	case config.CacheRedis:
		return cache.NewRedisCache(ctx, cache.RedisOptions{URL: a.cfg.Cache.RedisURL, Prefix: a.cfg.Cache.Prefix})
	default:
		return cache.NewNullCache(), nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = a.cfg.Server.Timeout
	}
	maxBody, _ := cmd.Flags().GetInt64("max-body")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	results, err := openCache(ctx, a)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer results.Close()

	s := &server{
		viz:     sess.viz,
		cache:   results,
		ttl:     a.cfg.Cache.TTL,
		timeout: timeout,
		maxBody: maxBody,
		format:  a.cfg.Render.Format,
		log:     a.log,
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.log.Info("goviz server listening", "addr", addr, "backend", a.cfg.Backend, "cache", a.cfg.Cache.Kind)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	a.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
