package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
)

// sseWriter frames exchange events as server-sent events, one
// "data: {json}\n\n" record per event, flushed immediately. Headers are
// written with the first event.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	buf     bytes.Buffer
	enc     *json.Encoder
	started bool
}

var _ runtime.Sink = (*sseWriter)(nil)

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	s := &sseWriter{w: w, rc: http.NewResponseController(w)}
	s.enc = json.NewEncoder(&s.buf)
	s.enc.SetEscapeHTML(false)
	return s
}

func (s *sseWriter) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// Send writes one event. An error means the client is gone.
func (s *sseWriter) Send(e runtime.Event) error {
	if !s.started {
		s.start()
	}
	s.buf.Reset()
	s.buf.WriteString("data: ")
	if err := s.enc.Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.buf.WriteByte('\n')

	if _, err := s.w.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}
