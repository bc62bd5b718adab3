// Package debughttp serves metrics and the recent event ring over HTTP
// for a running timeline.
package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/lastview/internal/logging"
	"github.com/abelbrown/lastview/internal/otel"
)

const (
	defaultEventLimit = 100
	shutdownTimeout   = 5 * time.Second
)

// Options configures a Server. Nil fields disable their endpoints.
type Options struct {
	Gatherer prometheus.Gatherer
	Events   *otel.RingBuffer
	// State returns a JSON-encodable view of the live presenter.
	State func() any
}

// Server wraps a chi.Router with the debug endpoints.
type Server struct {
	Router chi.Router
	opts   Options
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{Router: chi.NewRouter(), opts: opts}
	r := s.Router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/debug", func(r chi.Router) {
		r.Get("/events", s.events)
		r.Get("/events/stats", s.eventStats)
		r.Get("/state", s.state)
	})
	return s
}

// events returns the newest events, optionally for one feed.
// Query: feed=<key>, n=<limit>.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.opts.Events == nil {
		http.Error(w, "event ring disabled", http.StatusNotFound)
		return
	}
	n := defaultEventLimit
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	var evs []otel.Event
	if feedKey := r.URL.Query().Get("feed"); feedKey != "" {
		evs = s.opts.Events.ForFeed(feedKey, n)
	} else {
		evs = s.opts.Events.Last(n)
	}
	if evs == nil {
		evs = []otel.Event{}
	}
	writeJSON(w, evs)
}

func (s *Server) eventStats(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Events == nil {
		http.Error(w, "event ring disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"len":   s.opts.Events.Len(),
		"cap":   s.opts.Events.Cap(),
		"kinds": s.opts.Events.Stats(),
	})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	if s.opts.State == nil {
		http.Error(w, "no state source", http.StatusNotFound)
		return
	}
	writeJSON(w, s.opts.State())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("debughttp: encode response", "err", err)
	}
}

// Serve runs the server on ln until ctx is cancelled, then shuts it down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("debug server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
