package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const readChunkSize = 32 * 1024

// Decoder splits an upstream byte stream into lines and turns each line into
// a Fragment. It is not safe for concurrent use.
type Decoder struct {
	extractors []Extractor
	buf        []byte
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithExtractors replaces the extractor chain.
func WithExtractors(extractors ...Extractor) Option {
	return func(d *Decoder) {
		d.extractors = extractors
	}
}

// NewDecoder creates a Decoder using DefaultExtractors unless overridden.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{extractors: DefaultExtractors}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed consumes a chunk and returns the fragments for every line it completes.
// The trailing partial line stays buffered.
func (d *Decoder) Feed(chunk []byte) []Fragment {
	d.buf = append(d.buf, chunk...)

	var out []Fragment
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if f, ok := d.decodeLine(line, false); ok {
			out = append(out, f)
		}
	}
	// Release the consumed prefix once the buffer drains.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Flush decodes whatever remains buffered as a final line.
func (d *Decoder) Flush() []Fragment {
	rest := d.buf
	d.buf = nil
	if f, ok := d.decodeLine(rest, true); ok {
		return []Fragment{f}
	}
	return nil
}

// Buffered reports the number of bytes waiting for a line terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) decodeLine(line []byte, final bool) (Fragment, bool) {
	// Trimming also drops the \r of a \r\n terminator.
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Fragment{}, false
	}

	if !json.Valid(trimmed) {
		return Fragment{Kind: Unrecognized, Text: string(trimmed), Final: final}, true
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return Fragment{Kind: Unrecognized, Text: string(trimmed), Final: final}, true
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return Fragment{}, false
	}
	text, ok := extract(d.extractors, obj)
	if !ok {
		return Fragment{}, false
	}
	return Fragment{Kind: Recognized, Text: text, Final: final}, true
}

// TransportError reports that the upstream body failed mid-stream. The
// failure marker has already been emitted when Decode returns it.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream stream interrupted: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// EmitFunc receives fragments in stream order. Returning an error stops
// decoding; the error is returned from Decode unchanged.
type EmitFunc func(Fragment) error

// Decode reads r to completion, emitting fragments as lines complete.
//
// End of stream flushes the buffered tail. A read failure or a cancelled
// context emits one TransportFailure fragment and returns a *TransportError.
func Decode(ctx context.Context, r io.Reader, emit EmitFunc, opts ...Option) error {
	d := NewDecoder(opts...)
	chunk := make([]byte, readChunkSize)

	emitAll := func(fragments []Fragment) error {
		for _, f := range fragments {
			if err := emit(f); err != nil {
				return err
			}
		}
		return nil
	}

	fail := func(cause error) error {
		if err := emit(Fragment{Kind: TransportFailure, Text: FailureMarker}); err != nil {
			return err
		}
		return &TransportError{Err: cause}
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			if err := emitAll(d.Feed(chunk[:n])); err != nil {
				return err
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			return emitAll(d.Flush())
		}
		return fail(readErr)
	}
}
