package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/mishnit/pubsub/internal/journal"
	"github.com/mishnit/pubsub/internal/pubsub"
	"github.com/mishnit/pubsub/internal/shelf"
	"github.com/mishnit/pubsub/pkg/log"
)

// Source is the runtime surface the server reads from. *runtime.Runtime
// implements it.
type Source interface {
	CheckHealth(ctx context.Context) error
	Running() bool
	ShelfSnapshot() shelf.Snapshot
	TopicStats() []pubsub.TopicStats
	MetricsHandler() http.Handler
	Events(opts journal.ReadOptions) ([]journal.Entry, uint64, error)
}

// Server is the status HTTP server.
type Server struct {
	src    Source
	logger log.Logger
	srv    *http.Server
	lis    net.Listener
}

// New builds the router. Call ListenAndServe to start it.
func New(src Source, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{src: src, logger: logger.WithComponent("http")}
	s.srv = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogging)
	r.Use(cors)
	r.Get("/v1/healthz", s.handleHealth)
	r.Get("/v1/shelf", s.handleShelf)
	r.Get("/v1/topics", s.handleTopics)
	r.Get("/v1/events", s.handleEvents)
	r.Method(http.MethodGet, "/metrics", s.src.MetricsHandler())
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close closes the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(ww, r)
		if ww.status == 0 {
			ww.status = http.StatusOK
		}
		s.logger.Debug("request",
			log.Str("method", r.Method),
			log.Str("path", r.URL.Path),
			log.Int("status", ww.status),
			log.Dur("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.src.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_serving", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": s.src.Running()})
}

func (s *Server) handleShelf(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.src.ShelfSnapshot())
}

func (s *Server) handleTopics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.src.TopicStats()})
}

type eventsResponse struct {
	Entries []journal.Entry `json:"entries"`
	Next    uint64          `json:"next,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := journal.ReadOptions{Limit: 100}
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be a sequence number")
			return
		}
		opts.From = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}
	f, err := journal.Compile(q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.Filter = f

	entries, next, err := s.src.Events(opts)
	if err != nil {
		s.logger.Error("read journal", log.Err(err))
		writeError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Entries: entries, Next: next})
}
