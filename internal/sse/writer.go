package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Encode serializes one Server-Sent-Events frame: "event: {type}\ndata: {JSON}\n\n".
// The payload must be JSON-serializable; no escaping beyond JSON is applied.
func Encode(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)), nil
}

// Writer emits SSE frames over an http.ResponseWriter. Writes are serialized
// and flushed per frame so intermediaries forward them immediately.
type Writer struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewWriter wraps w for SSE output. The ResponseWriter must support
// http.Flusher, which every net/http and httptest writer does.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support http.Flusher")
	}
	return &Writer{writer: w, flusher: flusher}, nil
}

// WriteEvent encodes and writes a single frame.
func (w *Writer) WriteEvent(eventType string, payload any) error {
	frame, err := Encode(eventType, payload)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(frame); err != nil {
		return fmt.Errorf("write %s frame: %w", eventType, err)
	}
	w.flusher.Flush()
	return nil
}

// WritePing emits a heartbeat frame with an empty payload.
func (w *Writer) WritePing() error {
	return w.WriteEvent("ping", struct{}{})
}

// SetHeaders configures the response for SSE streaming. Must be called before
// the first write.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
