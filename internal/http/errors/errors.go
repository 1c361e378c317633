package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Body is the JSON error document returned to clients.
type Body struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response body", zap.Error(err))
	}
}

// Write sends a JSON error document carrying the request id.
func Write(w http.ResponseWriter, r *http.Request, status int, message string) {
	WriteJSON(w, status, Body{Error: message, RequestID: middleware.GetReqID(r.Context())})
}

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	LogError(r, message, err)
	// Clients only see a generic message; details stay in the log.
	Write(w, r, http.StatusInternalServerError, "internal server error")
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, field, clientMessage string) {
	logger(r).Info("bad request", zap.Error(err))
	WriteJSON(w, http.StatusBadRequest, Body{Error: clientMessage, Field: field, RequestID: middleware.GetReqID(r.Context())})
}

func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	Write(w, r, http.StatusNotFound, message)
}

func UnavailableError(w http.ResponseWriter, r *http.Request, err error) {
	logger(r).Error("content store unavailable", zap.Error(err))
	Write(w, r, http.StatusServiceUnavailable, "content store unavailable")
}

func LogError(r *http.Request, message string, err error) {
	logger(r).Error(message, zap.Error(err))
}

func LogInfo(r *http.Request, message string) {
	logger(r).Info(message)
}

func logger(r *http.Request) *zap.Logger {
	l := zap.L()
	if id := middleware.GetReqID(r.Context()); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	return l
}
