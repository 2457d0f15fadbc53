package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
	"github.com/teemow/inboxpilot/internal/stream"
)

// Defaults for a local Ollama install.
const (
	DefaultEndpoint = "http://localhost:11434/api/chat"
	DefaultModel    = "llama3.2-vision:latest"
	DefaultTimeout  = 5 * time.Minute

	// maxErrorBody caps how much of a failed upstream response is kept as details.
	maxErrorBody = 64 << 10
)

// Config configures a Relay. Empty Endpoint and Model fall back to the
// defaults above. A zero Timeout leaves the upstream call without a deadline.
type Config struct {
	Endpoint   string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
}

// Relay posts generation requests to the upstream and relays the stream.
// It is safe for concurrent use.
type Relay struct {
	endpoint string
	model    string
	timeout  time.Duration
	client   *http.Client
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// New creates a Relay.
func New(cfg Config) *Relay {
	r := &Relay{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		client:   cfg.HTTPClient,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if r.endpoint == "" {
		r.endpoint = DefaultEndpoint
	}
	if r.model == "" {
		r.model = DefaultModel
	}
	// No client-level timeout: it would cut long generations regardless of
	// the per-request deadline.
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.metrics == nil {
		r.metrics = &instrumentation.Metrics{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = logging.WithService(r.logger, instrumentation.ServiceUpstream)
	return r
}

// Model returns the upstream model name.
func (r *Relay) Model() string {
	return r.model
}

// Endpoint returns the upstream chat URL.
func (r *Relay) Endpoint() string {
	return r.endpoint
}

// Open validates req, posts it upstream and returns the response once the
// upstream has answered with a 2xx status. The caller must Close it.
func (r *Relay) Open(ctx context.Context, req GenerationRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(newChatRequest(r.model, req))
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	callerCtx := ctx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	ctx, span := instrumentation.StartGenerationSpan(ctx, r.model)
	start := time.Now()

	fail := func(err *UpstreamError) (*Response, error) {
		cancel()
		span.SetAttributes(attribute.Int(instrumentation.SpanAttrUpstreamCode, err.Status))
		instrumentation.SetSpanError(span, err)
		span.End()
		r.metrics.RecordUpstreamError(callerCtx, err.Status)
		r.metrics.RecordGeneration(callerCtx, r.model, instrumentation.StatusError, time.Since(start))
		r.logger.Warn("upstream request failed",
			logging.Operation("relay.open"),
			slog.Int("upstream_status", err.Status),
			logging.Err(err))
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fail(&UpstreamError{Err: err})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return fail(&UpstreamError{Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		details, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return fail(&UpstreamError{Status: resp.StatusCode, Body: string(details)})
	}

	r.logger.Debug("upstream stream opened",
		logging.Operation("relay.open"),
		slog.Int("attachments", len(req.Attachments)),
		slog.Int("prompt_length", len(req.Content())))

	return &Response{
		relay:     r,
		resp:      resp,
		ctx:       ctx,
		callerCtx: callerCtx,
		cancel:    cancel,
		span:      span,
		start:     start,
		status:    instrumentation.StatusSuccess,
	}, nil
}

// Generate opens the upstream stream and relays it into sink until the end
// of the stream. A broken upstream connection is reported inline through
// stream.FailureMarker and is not returned as an error.
func (r *Relay) Generate(ctx context.Context, req GenerationRequest, sink FragmentSink) error {
	resp, err := r.Open(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Close()

	if resp.Passthrough() {
		var buf strings.Builder
		if err := resp.Forward(&buf); err != nil {
			return err
		}
		if buf.Len() == 0 {
			return nil
		}
		return sink.WriteFragment(buf.String())
	}

	_, err = resp.Pump(sink)
	return err
}

// Stats summarizes a relayed stream.
type Stats struct {
	Fragments   int
	Interrupted bool
}

// Response is an open upstream stream.
type Response struct {
	relay     *Relay
	resp      *http.Response
	ctx       context.Context
	callerCtx context.Context
	cancel    context.CancelFunc
	span      trace.Span

	start     time.Time
	status    string
	fragments int
	closeOnce sync.Once
}

// Passthrough reports whether the upstream returned no readable body, in
// which case the body must be forwarded raw with ContentType.
func (s *Response) Passthrough() bool {
	return s.resp.Body == nil || s.resp.Body == http.NoBody
}

// ContentType is the upstream content type, defaulting to application/octet-stream.
func (s *Response) ContentType() string {
	if ct := s.resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Forward copies the raw upstream body to w without decoding it.
func (s *Response) Forward(w io.Writer) error {
	if s.resp.Body == nil {
		return nil
	}
	if _, err := io.Copy(w, s.resp.Body); err != nil {
		s.status = instrumentation.StatusError
		return fmt.Errorf("forward upstream body: %w", err)
	}
	return nil
}

// Pump decodes the upstream body and writes every fragment to sink in order.
//
// An interrupted upstream yields the failure marker and a nil error. An error
// is returned only when the sink fails or the caller went away, in which case
// the upstream read is abandoned.
func (s *Response) Pump(sink FragmentSink) (Stats, error) {
	var stats Stats
	metrics := s.relay.metrics

	err := stream.Decode(s.ctx, s.resp.Body, func(f stream.Fragment) error {
		metrics.RecordStreamFragment(s.callerCtx, f.Kind.String())
		stats.Fragments++
		return sink.WriteFragment(f.Render())
	})
	s.fragments = stats.Fragments

	var terr *stream.TransportError
	switch {
	case err == nil:
		return stats, nil
	case errors.As(err, &terr):
		stats.Interrupted = true
		s.status = instrumentation.StatusError
		instrumentation.SetSpanError(s.span, terr)
		if cerr := s.callerCtx.Err(); cerr != nil {
			return stats, cerr
		}
		s.relay.logger.Warn("upstream stream interrupted",
			logging.Operation("relay.pump"),
			slog.Int("fragments", stats.Fragments),
			logging.Err(terr))
		return stats, nil
	default:
		s.status = instrumentation.StatusError
		instrumentation.SetSpanError(s.span, err)
		return stats, err
	}
}

// Close releases the upstream connection. Close errors are swallowed since
// the stream has already ended for the caller.
func (s *Response) Close() {
	s.closeOnce.Do(func() {
		if s.resp.Body != nil {
			_ = s.resp.Body.Close()
		}
		s.cancel()

		s.span.SetAttributes(attribute.Int(instrumentation.SpanAttrFragments, s.fragments))
		if s.status == instrumentation.StatusSuccess {
			instrumentation.SetSpanSuccess(s.span)
		}
		s.span.End()
		s.relay.metrics.RecordGeneration(s.callerCtx, s.relay.model, s.status, time.Since(s.start))
	})
}

// Ping checks that the upstream host answers HTTP. Any response counts,
// including error statuses: only an unreachable upstream fails.
func (r *Relay) Ping(ctx context.Context) error {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return fmt.Errorf("invalid upstream endpoint: %w", err)
	}
	base := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return resp.Body.Close()
}
