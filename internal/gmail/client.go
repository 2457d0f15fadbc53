package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
)

const (
	me         = "me"
	inboxLabel = "INBOX"
)

// Client wraps the Gmail Users service for one user.
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	// Concurrency bounds the parallel metadata and attachment fetches.
	concurrency int
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
	concurrency int
	api         []option.ClientOption
}

// WithMetrics records google_api_operations_total for every call.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithLogger sets the logger for skipped attachments and failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithConcurrency bounds the number of parallel Gmail requests of one call.
func WithConcurrency(n int) Option {
	return func(o *clientOptions) { o.concurrency = n }
}

// WithAPIOptions passes extra options to the Gmail service, e.g.
// option.WithEndpoint in tests.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(o *clientOptions) { o.api = append(o.api, opts...) }
}

// NewClient creates a Gmail client that authenticates with httpClient.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	o := clientOptions{concurrency: 10}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}

	apiOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, o.api...)
	svc, err := gmail.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:         svc.Users,
		metrics:     o.metrics,
		logger:      o.logger,
		concurrency: o.concurrency,
	}, nil
}

// observe runs one Gmail operation inside a span and records its outcome.
func (c *Client) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		c.logger.Debug("gmail call failed",
			logging.Service(instrumentation.ServiceGmail),
			logging.Operation(operation),
			logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	return err
}

// HeaderValue extracts a header value from a Gmail message
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if h.Name == header {
			return h.Value
		}
	}
	return ""
}
