package handler

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"heartstage/internal/service"
)

// maxUploadBytes caps photo/video uploads at 64 MiB
const maxUploadBytes = 64 << 20

// UploadHandler handles the file upload boundary
type UploadHandler struct {
	uploader service.Uploader
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(uploader service.Uploader) *UploadHandler {
	return &UploadHandler{uploader: uploader}
}

// Upload handles POST /v1/uploads (multipart form, field "file")
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := h.uploader.Upload(r.Context(), header.Filename, contentType, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// Serve handles GET /files/{id}
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, contentType, err := h.uploader.Open(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer data.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	io.Copy(w, data)
}
