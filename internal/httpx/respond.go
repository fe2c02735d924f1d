package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the error envelope of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// listResponse wraps a collection with its length.
type listResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Data: items, Count: len(items)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	if err := enc.Encode(v); err != nil {
		slog.Default().Warn("json encode", slog.String("err", err.Error()))
	}
}

func ok(w http.ResponseWriter, v any) { writeJSON(w, http.StatusOK, v) }

func fail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// internalError logs err and answers with a generic message.
func internalError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	log.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.String("err", err.Error()))
	fail(w, http.StatusInternalServerError, "internal server error")
}
