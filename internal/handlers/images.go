package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/gallery/internal/models"
)

func (h *Handler) HandleImages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.service.GetAllImages())
	case "POST":
		h.handleFileUpload(w, r)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleImageDetail serves /api/images/{id}, /api/images/{id}/file and
// /api/images/{id}/metadata.
func (h *Handler) HandleImageDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/images/"), "/")
	imageID, sub, _ := strings.Cut(rest, "/")
	if imageID == "" {
		h.writeError(w, "Image not found", http.StatusNotFound)
		return
	}

	switch sub {
	case "":
		h.handleImage(w, r, imageID)
	case "file":
		h.handleImageFile(w, r, imageID)
	case "metadata":
		h.handleImageMetadata(w, r, imageID)
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request, imageID string) {
	switch r.Method {
	case "GET":
		img, err := h.service.GetImage(imageID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, img)
	case "DELETE":
		if err := h.service.DeleteImage(r.Context(), imageID); err != nil {
			h.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleImageFile(w http.ResponseWriter, r *http.Request, imageID string) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, contentType, err := h.service.OpenImage(r.Context(), imageID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("Unable to write image file", "id", imageID, "err", err)
	}
}

func (h *Handler) handleImageMetadata(w http.ResponseWriter, r *http.Request, imageID string) {
	switch r.Method {
	case "GET":
		meta, err := h.service.GetImageMetadata(imageID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, meta)
	case "POST", "PUT":
		var meta models.ImageMetadata
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		updated, err := h.service.SetImageMetadata(imageID, meta)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, updated)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
