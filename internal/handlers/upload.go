package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024*1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(fileData) == 0 {
		h.writeError(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	if int64(len(fileData)) > h.maxUploadBytes {
		h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
		return
	}

	img, err := h.service.SaveImage(r.Context(), header.Filename, header.Header.Get("Content-Type"), fileData)
	if err != nil {
		h.writeError(w, "Failed to save image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, img)
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("File too large (max %dMB)", h.maxUploadBytes/(1024*1024))
}
