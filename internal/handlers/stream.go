package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tmaxmax/go-sse"
)

type streamState int

const (
	stateNotStarted streamState = iota
	stateHeadersSent
	stateClosed
)

var errStreamClosed = errors.New("stream already closed")

// errorFrame is the payload of the terminal SSE frame written when a relay fails.
type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// streamWriter owns the response of one relay. Headers are written exactly once, and nothing is written
// after close.
type streamWriter struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	state streamState

	// tail holds the last bytes written, to tell whether the client is between frames.
	tail []byte
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	return &streamWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// start sends the SSE headers with status. It does nothing once headers are out.
func (s *streamWriter) start(status int) {
	if s.state != stateNotStarted {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(status)
	s.state = stateHeadersSent
}

// write forwards one chunk and flushes it to the client.
func (s *streamWriter) write(chunk []byte) error {
	if s.state == stateClosed {
		return errStreamClosed
	}
	s.start(http.StatusOK)

	n, err := s.w.Write(chunk)
	s.remember(chunk[:n])
	if err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to flush chunk: %w", err)
	}
	return nil
}

// copyFrom relays r until EOF. A chunk is read only after the previous one was written, so a slow client
// slows down consumption of the runtime stream.
func (s *streamWriter) copyFrom(r io.Reader) (int64, error) {
	buf := make([]byte, readBufferSize)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := s.write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("failed to read agent stream: %w", err)
		}
	}
}

// fail writes the terminal error frame and closes the stream. status only applies when headers are not
// out yet.
func (s *streamWriter) fail(status int, message string) {
	if s.state == stateClosed {
		return
	}
	s.start(status)

	// Terminate a frame the runtime left half written so the error frame parses on its own.
	if sep := s.pendingSeparator(); sep != "" {
		_, _ = io.WriteString(s.w, sep)
	}

	data, _ := json.Marshal(errorFrame{Type: "error", Error: message})
	msg := &sse.Message{}
	msg.AppendData(string(data))
	if _, err := msg.WriteTo(s.w); err == nil {
		_ = s.rc.Flush()
	}
	s.state = stateClosed
}

func (s *streamWriter) remember(b []byte) {
	s.tail = append(s.tail, b...)
	if len(s.tail) > 2 {
		s.tail = s.tail[len(s.tail)-2:]
	}
}

// pendingSeparator returns what must be written to end the frame in progress.
func (s *streamWriter) pendingSeparator() string {
	switch {
	case len(s.tail) == 0, bytes.HasSuffix(s.tail, []byte("\n\n")):
		return ""
	case bytes.HasSuffix(s.tail, []byte("\n")):
		return "\n"
	default:
		return "\n\n"
	}
}

// close ends the stream, sending headers first if nothing was written.
func (s *streamWriter) close() {
	s.start(http.StatusOK)
	s.state = stateClosed
}
