// Package sse decodes and encodes the line-oriented event stream spoken by
// the Kolony functions: "data: <json>" lines, ":" keep-alive comments, blank
// separators and a terminating "data: [DONE]".
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"

	"golang.org/x/text/encoding"

	apierrors "github.com/zhengjr9/kolony/internal/errors"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	// DefaultMaxLineSize bounds the single partial line kept between frames.
	DefaultMaxLineSize = 1 << 20

	readBufferSize = 32 * 1024
)

// ErrLineTooLong is returned when a line grows past the configured maximum
// without a terminator.
var ErrLineTooLong = errors.New("sse: line too long")

// Payload is the JSON document carried by one data line.
type Payload []byte

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p, v)
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithEncoding transcodes a non-UTF-8 body before line splitting. Partial
// multi-byte sequences at frame boundaries are carried into the next read.
func WithEncoding(enc encoding.Encoding) Option {
	return func(d *Decoder) { d.enc = enc }
}

// WithLogger sets the logger used for decode warnings.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// Decoder turns a byte stream into Payloads. It is not safe for concurrent
// use; each request gets its own Decoder.
type Decoder struct {
	r        *bufio.Reader
	enc      encoding.Encoding
	logger   *slog.Logger
	maxLine  int
	line     []byte
	done     bool
	warnings int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		logger:  slog.Default(),
		maxLine: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.enc != nil {
		r = d.enc.NewDecoder().Reader(r)
	}
	d.r = bufio.NewReaderSize(r, readBufferSize)
	return d
}

// Warnings returns how many malformed payloads were skipped so far.
func (d *Decoder) Warnings() int { return d.warnings }

// Next returns the next payload in arrival order. It returns io.EOF when the
// stream ends, either by closing or by a [DONE] sentinel; after that no more
// reads are issued. Malformed payloads are logged and skipped. An
// unterminated last line is treated as a data line, with or without its
// "data: " prefix, and returned if it holds valid JSON. Any other error is a
// transport failure or a cancellation of ctx.
func (d *Decoder) Next(ctx context.Context) (Payload, error) {
	for {
		if d.done {
			return nil, io.EOF
		}
		if err := apierrors.FromContext(ctx); err != nil {
			d.done = true
			return nil, err
		}

		line, err := d.readLine()
		if err != nil {
			d.done = true
			if errors.Is(err, io.EOF) {
				if p, ok := d.trailing(line); ok {
					return p, nil
				}
				return nil, io.EOF
			}
			return nil, apierrors.Transport(ctx, err)
		}

		p, stop := d.parseLine(line)
		if stop {
			d.done = true
			return nil, io.EOF
		}
		if p != nil {
			return p, nil
		}
	}
}

// All ranges over the remaining payloads. A non-EOF error is yielded once
// and ends the sequence.
func (d *Decoder) All(ctx context.Context) iter.Seq2[Payload, error] {
	return func(yield func(Payload, error) bool) {
		for {
			p, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// readLine returns the next line without its '\n'. On EOF it returns
// whatever unterminated bytes were left together with io.EOF.
func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	for {
		chunk, err := d.r.ReadSlice('\n')
		d.line = append(d.line, chunk...)
		if len(d.line) > d.maxLine {
			return nil, ErrLineTooLong
		}
		switch {
		case err == nil:
			return d.line[:len(d.line)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return d.line, err
		}
	}
}

// parseLine classifies one line. It returns a copy of the payload for data
// lines, stop=true for the [DONE] sentinel and nil for anything ignored.
func (d *Decoder) parseLine(line []byte) (Payload, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 || line[0] == ':' {
		return nil, false
	}
	data, ok := bytes.CutPrefix(line, []byte(dataPrefix))
	if !ok {
		return nil, false
	}
	data = bytes.TrimSpace(data)
	if string(data) == doneSentinel {
		return nil, true
	}
	if !json.Valid(data) {
		d.warnings++
		d.logger.Warn("skipping malformed stream payload", "bytes", len(data), "prefix", preview(data))
		return nil, false
	}
	return Payload(bytes.Clone(data)), false
}

// trailing handles bytes left without a line terminator when the stream
// closed. They are used only when they form a complete JSON document.
func (d *Decoder) trailing(rest []byte) (Payload, bool) {
	rest = bytes.TrimSpace(rest)
	if len(rest) == 0 {
		return nil, false
	}
	if data, ok := bytes.CutPrefix(rest, []byte("data:")); ok {
		rest = bytes.TrimSpace(data)
	}
	if string(rest) == doneSentinel {
		return nil, false
	}
	if !json.Valid(rest) {
		d.logger.Debug("discarding unterminated trailing data", "bytes", len(rest))
		return nil, false
	}
	return Payload(bytes.Clone(rest)), true
}

func preview(b []byte) string {
	const n = 64
	if len(b) > n {
		return string(b[:n]) + "…"
	}
	return string(b)
}
