package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baldanca/unicorn-api/lookup"
	"github.com/baldanca/unicorn-api/payload"
	"github.com/baldanca/unicorn-api/sink"
)

// Response headers describing the stored object.
const (
	HeaderObjectBucket  = "X-Object-Bucket"
	HeaderObjectKey     = "X-Object-Key"
	HeaderObjectVersion = "X-Object-Version"
)

func (h *Handler) hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"Hello": "World"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.requestLogger(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return
		}
		log.WarnContext(ctx, "failed to read request body", slog.Any("error", err))
		writeDetail(w, http.StatusBadRequest, "could not read request body")
		return
	}

	res, err := h.ingestor.Ingest(ctx, body)
	if err != nil {
		if ve, ok := payload.AsValidationError(err); ok {
			log.InfoContext(ctx, "rejected unicorn", slog.Int("errors", len(ve.Errors)))
			writeValidation(w, ve)
			return
		}
		attrs := []any{slog.Any("error", err)}
		var se *sink.StorageError
		if errors.As(err, &se) {
			attrs = append(attrs, slog.String("bucket", se.Bucket), slog.String("key", se.Key), slog.String("code", se.Code))
		}
		log.ErrorContext(ctx, "failed to store unicorn", attrs...)
		writeDetail(w, http.StatusInternalServerError, internalErrorDetail)
		return
	}

	if res.Outcome.Bucket != "" {
		w.Header().Set(HeaderObjectBucket, res.Outcome.Bucket)
	}
	w.Header().Set(HeaderObjectKey, res.Outcome.Key)
	if res.Outcome.ETag != "" {
		w.Header().Set("ETag", res.Outcome.ETag)
	}
	if res.Outcome.VersionID != "" {
		w.Header().Set(HeaderObjectVersion, res.Outcome.VersionID)
	}
	log.InfoContext(ctx, "stored unicorn", slog.String("key", res.Outcome.Key))
	writeJSON(w, http.StatusOK, res.Payload)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	u, err := h.finder.FindByID(ctx, id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, u)
	case errors.Is(err, lookup.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Not Found")
	case errors.Is(err, lookup.ErrNotImplemented):
		writeDetail(w, http.StatusNotImplemented, "Not Implemented")
	default:
		h.requestLogger(ctx).ErrorContext(ctx, "lookup failed", slog.String("id", id), slog.Any("error", err))
		writeDetail(w, http.StatusInternalServerError, internalErrorDetail)
	}
}
