package checkin_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"
)

// SSEHandler streams live scan events to dashboard clients.
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter *sse.ScanEventEmitter
}

func NewSSEHandler(log *logger.Logger, emitter *sse.ScanEventEmitter) *SSEHandler {
	return &SSEHandler{Logger: log, EventEmitter: emitter}
}

// HandleLiveScans streams scan events; an optional ?hall= filter narrows the
// feed to one hall.
func (h *SSEHandler) HandleLiveScans(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	hall := r.URL.Query().Get("hall")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	eventChan := h.EventEmitter.Subscribe(ctx, hall)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to live scan feed (hall=%q)", hall))

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}

			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize scan event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: scan\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from live scan feed (hall=%q)", hall))
			return
		}
	}
}
