package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/baldanca/unicorn-api/payload"
)

const internalErrorDetail = "Internal Server Error"

type detailResponse struct {
	Detail any `json:"detail"`
}

// writeJSON writes compact JSON without HTML escaping, so echoed payloads
// match their stored bytes.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.Any("error", err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"` + internalErrorDetail + `"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailResponse{Detail: detail})
}

func writeValidation(w http.ResponseWriter, ve *payload.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: ve.Errors})
}
