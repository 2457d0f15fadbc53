package relay

import (
	"errors"
	"net/http"
	"sync"
)

// FragmentSink receives rendered fragments in stream order.
type FragmentSink interface {
	WriteFragment(text string) error
}

// SinkFunc adapts a function to FragmentSink.
type SinkFunc func(text string) error

// WriteFragment calls f.
func (f SinkFunc) WriteFragment(text string) error {
	return f(text)
}

// Tee writes every fragment to each sink in order and stops at the first error.
func Tee(sinks ...FragmentSink) FragmentSink {
	return SinkFunc(func(text string) error {
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.WriteFragment(text); err != nil {
				return err
			}
		}
		return nil
	})
}

// Content types of a streamed response.
const (
	ContentTypeText = "text/plain; charset=utf-8"
	cacheControl    = "no-transform"
)

// ResponseSink streams fragments into an HTTP response, flushing after each
// write. Headers are committed on the first write or on Commit, whichever
// comes first; until then the handler may still answer with a JSON error.
type ResponseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu        sync.Mutex
	committed bool
}

// NewResponseSink wraps w.
func NewResponseSink(w http.ResponseWriter) *ResponseSink {
	return &ResponseSink{w: w, rc: http.NewResponseController(w)}
}

// Commit sends the 200 text/plain headers if they have not been sent yet.
func (s *ResponseSink) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked()
}

func (s *ResponseSink) commitLocked() {
	if s.committed {
		return
	}
	s.committed = true
	h := s.w.Header()
	h.Set("Content-Type", ContentTypeText)
	h.Set("Cache-Control", cacheControl)
	h.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	s.flushLocked()
}

// Committed reports whether the response status line has been sent.
func (s *ResponseSink) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// WriteFragment writes text and flushes it to the client.
func (s *ResponseSink) WriteFragment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitLocked()
	if text == "" {
		return nil
	}
	if _, err := s.w.Write([]byte(text)); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *ResponseSink) flushLocked() error {
	err := s.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
