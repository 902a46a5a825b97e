// Package api exposes the ingest pipeline over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/baldanca/unicorn-api/ingestor"
	"github.com/baldanca/unicorn-api/lookup"
	"github.com/baldanca/unicorn-api/metrics"
)

// Ingester stores one JSON request body.
type Ingester interface {
	Ingest(ctx context.Context, body []byte) (ingestor.Result, error)
}

type HandlerOptions struct {
	// MaxBodyBytes limits the size of an ingest request body.
	// Default: 1 MiB.
	MaxBodyBytes int64

	// Metrics exposes the prometheus registry under /metrics.
	Metrics bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func DefaultHandlerOptions() HandlerOptions {
	return HandlerOptions{
		MaxBodyBytes: 1 << 20,
		Metrics:      true,
		Logger:       slog.Default(),
	}
}

// Handler serves the Unicorn API routes. The same Handler backs the HTTP
// server and the Lambda adapter.
type Handler struct {
	router   chi.Router
	ingestor Ingester
	finder   lookup.Finder
	logger   *slog.Logger
	opts     HandlerOptions
}

func NewHandler(ing Ingester, finder lookup.Finder, opts HandlerOptions) *Handler {
	if ing == nil {
		panic("ingester is required")
	}
	if finder == nil {
		finder = lookup.Unimplemented{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultHandlerOptions().MaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &Handler{
		ingestor: ing,
		finder:   finder,
		logger:   opts.Logger,
		opts:     opts,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.instrument)
	r.Use(h.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", h.hello)
	r.Get("/healthz", h.health)
	r.Post("/unicorn", h.create)
	r.Get("/unicorn/{id}", h.get)
	if opts.Metrics {
		r.Handle("/metrics", metrics.Handler())
	}

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// requestLogger returns the handler logger tagged with the chi request id.
func (h *Handler) requestLogger(ctx context.Context) *slog.Logger {
	if id := middleware.GetReqID(ctx); id != "" {
		return h.logger.With(slog.String("request_id", id))
	}
	return h.logger
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(began).Seconds())
	})
}

// recoverer turns a panic into an opaque 500 and logs it.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.requestLogger(r.Context()).ErrorContext(r.Context(), "panic serving request",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
				)
				writeDetail(w, http.StatusInternalServerError, internalErrorDetail)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
