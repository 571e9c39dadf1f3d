package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/gallery/internal/observability"
)

// Routes registers the image API on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/images", observability.Instrument("/api/images", h.HandleImages))
	mux.HandleFunc("/api/images/stream", observability.Instrument("/api/images/stream", h.HandleStream))
	mux.HandleFunc("/api/images/", observability.Instrument("/api/images/{id}", h.HandleImageDetail))
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}
