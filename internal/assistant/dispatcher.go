package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/inboxpilot/internal/conversation"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
	"github.com/teemow/inboxpilot/internal/relay"
)

// ErrDispatchPending is returned when a generation is still streaming into
// the same conversation.
var ErrDispatchPending = errors.New("an assistant answer is already in progress for this conversation")

// Generator streams the answer to a generation request into sink.
// *relay.Relay implements it.
type Generator interface {
	Generate(ctx context.Context, req relay.GenerationRequest, sink relay.FragmentSink) error
}

type pendingKey struct {
	store *conversation.Store
	key   string
}

// Dispatcher runs assistant actions against conversation stores.
type Dispatcher struct {
	gen     Generator
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu      sync.Mutex
	pending map[pendingKey]struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for dispatch events.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records assistant_dispatch_total.
func WithMetrics(m *instrumentation.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher that generates answers with gen.
func NewDispatcher(gen Generator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		gen:     gen,
		logger:  slog.Default(),
		pending: make(map[pendingKey]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Pending reports whether a dispatch is running for the given conversation.
func (d *Dispatcher) Pending(store *conversation.Store, key string) bool {
	if key == "" {
		key = conversation.GeneralKey
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[pendingKey{store, key}]
	return ok
}

// Dispatch starts the action against the active conversation of store and
// returns once the assistant message exists. The pending check and the new
// messages are made under the store lock, so a concurrent SwitchContext
// cannot split them across conversations. Fragments are appended to that
// message and, when tee is not nil, written to tee as well. A failing tee is
// dropped and the generation continues into the store.
//
// The returned Completion resolves when the generation ends: the message is
// completed with the streamed text, or replaced by an inline error when the
// generation failed before any fragment arrived.
func (d *Dispatcher) Dispatch(ctx context.Context, store *conversation.Store, action Action, tee relay.FragmentSink) (*Completion, error) {
	req, err := BuildRequest(action)
	if err != nil {
		d.metrics.RecordAssistantDispatch(ctx, action.Intent.String(), instrumentation.StatusError)
		return nil, err
	}

	var userText string
	if action.Intent == IntentAsk {
		userText = action.Input
	}
	key, messageID, err := store.BeginReply(userText, func(key string) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		pk := pendingKey{store, key}
		if _, busy := d.pending[pk]; busy {
			return fmt.Errorf("%w: %s", ErrDispatchPending, key)
		}
		d.pending[pk] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	pk := pendingKey{store, key}

	c := &Completion{messageID: messageID, contextKey: key, done: make(chan struct{})}
	logger := d.logger.With(
		logging.Intent(action.Intent.String()),
		logging.ContextKey(key),
		logging.MessageID(messageID))

	go func() {
		start := time.Now()
		fragments := 0
		out := &detachableSink{sink: tee, logger: logger}
		sink := relay.SinkFunc(func(text string) error {
			if store.AppendFragment(messageID, text) {
				fragments++
			}
			return out.WriteFragment(text)
		})

		genErr := d.gen.Generate(ctx, req, sink)

		status := instrumentation.StatusSuccess
		switch {
		case genErr == nil:
			store.Complete(messageID)
		case fragments > 0:
			status = instrumentation.StatusError
			store.Complete(messageID)
			logger.Warn("assistant answer interrupted",
				slog.Int("fragments", fragments), logging.Err(genErr))
		default:
			status = instrumentation.StatusError
			store.Fail(messageID, genErr)
			logger.Warn("assistant answer failed", logging.Err(genErr))
		}

		d.mu.Lock()
		delete(d.pending, pk)
		d.mu.Unlock()

		d.metrics.RecordAssistantDispatch(context.WithoutCancel(ctx), action.Intent.String(), status)
		logger.Debug("assistant dispatch finished",
			logging.Status(status), slog.Duration(logging.KeyDuration, time.Since(start)))

		msg, _ := store.Message(messageID)
		c.resolve(Outcome{MessageID: messageID, Text: msg.Text, Err: genErr})
	}()

	return c, nil
}

// detachableSink forwards to sink until the first write error, then drops it.
type detachableSink struct {
	sink   relay.FragmentSink
	logger *slog.Logger
}

func (s *detachableSink) WriteFragment(text string) error {
	if s.sink == nil {
		return nil
	}
	if err := s.sink.WriteFragment(text); err != nil {
		s.logger.Debug("assistant stream listener detached", logging.Err(err))
		s.sink = nil
	}
	return nil
}

// Outcome is the result of one dispatch. Text is the final message text,
// which is an inline error when the generation failed before streaming.
type Outcome struct {
	MessageID string
	Text      string
	Err       error
}

// Completion resolves once per dispatch.
type Completion struct {
	messageID  string
	contextKey string
	once       sync.Once
	done       chan struct{}
	outcome    Outcome
}

// MessageID is the id of the assistant message being streamed.
func (c *Completion) MessageID() string {
	return c.messageID
}

// ContextKey is the conversation the message was appended to.
func (c *Completion) ContextKey() string {
	return c.contextKey
}

// Done is closed when the dispatch finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the dispatch finished or ctx is done.
func (c *Completion) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, nil
	case <-ctx.Done():
		return Outcome{MessageID: c.messageID}, ctx.Err()
	}
}

func (c *Completion) resolve(o Outcome) {
	c.once.Do(func() {
		c.outcome = o
		close(c.done)
	})
}
