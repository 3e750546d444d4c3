package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"heartstage/internal/show"
)

// StreamHandler pushes show snapshots to clients over server-sent events.
// Guest pages and the stage display hold one of these connections each for
// the whole show.
type StreamHandler struct {
	engine *show.Engine
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(engine *show.Engine) *StreamHandler {
	return &StreamHandler{engine: engine}
}

// Stream handles GET /v1/show/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, err := h.engine.OpenStream(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for env := range stream.C {
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}
