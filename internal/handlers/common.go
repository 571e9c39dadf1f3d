package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/gallery/internal/images"
	"github.com/lehigh-university-libraries/gallery/internal/notification"
)

const (
	DefaultMaxUploadBytes = 10 * 1024 * 1024
	DefaultKeepAlive      = 15 * time.Second
)

type Handler struct {
	service        *images.Service
	hub            *notification.Hub
	maxUploadBytes int64
	keepAlive      time.Duration
}

type Option func(*Handler)

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

func New(service *images.Service, hub *notification.Hub, opts ...Option) *Handler {
	h := &Handler{
		service:        service,
		hub:            hub,
		maxUploadBytes: DefaultMaxUploadBytes,
		keepAlive:      DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= 500 {
		slog.Error(message)
	} else {
		slog.Debug(message, "status", code)
	}
	http.Error(w, message, code)
}

// writeServiceError maps service errors to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, images.ErrNotFound) {
		h.writeError(w, "Image not found", http.StatusNotFound)
		return
	}
	h.writeError(w, err.Error(), http.StatusInternalServerError)
}
