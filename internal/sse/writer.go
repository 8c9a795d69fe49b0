package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Writer encodes events in the same line protocol the Decoder reads and
// flushes after every event when the destination supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. Flushing is a no-op when w is not an http.Flusher.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// WriteData writes v as a single JSON data line followed by a blank line.
func (w *Writer) WriteData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return w.write("data: %s\n\n", data)
}

// WriteEvent writes a named event, as the Anthropic stream format expects.
func (w *Writer) WriteEvent(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event, err)
	}
	return w.write("event: %s\ndata: %s\n\n", event, data)
}

// WriteComment writes a keep-alive comment line.
func (w *Writer) WriteComment(text string) error {
	return w.write(":%s\n\n", text)
}

// WriteDone writes the [DONE] sentinel.
func (w *Writer) WriteDone() error {
	return w.write("data: %s\n\n", doneSentinel)
}

func (w *Writer) write(format string, args ...any) error {
	if _, err := fmt.Fprintf(w.w, format, args...); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
