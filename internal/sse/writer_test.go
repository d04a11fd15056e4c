package sse

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEncodeFrameFormat(t *testing.T) {
	frame, err := Encode("token", map[string]string{"content": "hi"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got := string(frame)
	want := "event: token\ndata: {\"content\":\"hi\"}\n\n"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeRejectsUnserializablePayload(t *testing.T) {
	// Channels are not JSON-serializable; the failure must surface locally.
	if _, err := Encode("init", map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("Encode() with channel payload succeeded, want error")
	}
}

func TestWriterEmitsFramesInOrder(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	if err := w.WriteEvent("init", map[string]string{"provider": "openai"}); err != nil {
		t.Fatalf("WriteEvent(init) error = %v", err)
	}
	if err := w.WriteEvent("token", map[string]string{"content": "a"}); err != nil {
		t.Fatalf("WriteEvent(token) error = %v", err)
	}
	if err := w.WritePing(); err != nil {
		t.Fatalf("WritePing() error = %v", err)
	}

	body := rec.Body.String()
	initIdx := strings.Index(body, "event: init")
	tokenIdx := strings.Index(body, "event: token")
	pingIdx := strings.Index(body, "event: ping\ndata: {}")
	if initIdx < 0 || tokenIdx < 0 || pingIdx < 0 {
		t.Fatalf("missing frames in body: %q", body)
	}
	if !(initIdx < tokenIdx && tokenIdx < pingIdx) {
		t.Fatalf("frames out of order: init=%d token=%d ping=%d", initIdx, tokenIdx, pingIdx)
	}
	if rec.Flushed != true {
		t.Fatal("writer did not flush")
	}
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec)
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream; charset=utf-8" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache, no-transform" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("Connection"); got != "keep-alive" {
		t.Fatalf("Connection = %q", got)
	}
}
