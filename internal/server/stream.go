package server

import (
	"fmt"
	"net/http"
)

// StreamHandler serves the annotated frames as MJPEG.
type StreamHandler struct {
	hub *Hub
}

// NewStreamHandler creates a StreamHandler fed by hub.
func NewStreamHandler(hub *Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// ServeHTTP streams MJPEG frames to connected clients until they disconnect
// or the hub closes.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frames, ok := h.hub.watch()
	if !ok {
		http.Error(w, "Stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.hub.unwatch(frames)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case jpeg, ok := <-frames:
			if !ok {
				return
			}
			if err := writePart(w, jpeg); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}
