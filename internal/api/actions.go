package api

import (
	"log/slog"
	"net/http"

	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
	"github.com/teemow/inboxpilot/internal/relay"
)

type actionRequest struct {
	Intent   string   `json:"intent"`
	EmailIDs []string `json:"emailIds"`
	Input    string   `json:"input"`
}

// RunAction serves POST /api/assistant/actions. The reply streams back as
// text/plain while it is appended to the active conversation; failures
// before the first fragment are answered with a JSON error instead.
func (h *Handler) RunAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx, h.logger)

	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	intent, err := assistant.ParseIntent(req.Intent)
	if err != nil {
		writeError(w, err)
		return
	}

	session, _ := SessionFromContext(ctx)
	invocation := instrumentation.NewToolInvocation("assistant_action").
		WithUser(h.auth.Email(session)).
		WithSpanContext(ctx)
	defer func() { h.sc.Audit().LogToolInvocation(invocation) }()

	store, ok := h.store(w, r)
	if !ok {
		invocation.Complete(false, nil)
		return
	}

	// An ask without a selection is about the email that is open.
	ids := assistant.EmailIDsFor(intent, req.EmailIDs, store.ActiveKey())

	var emails []assistant.Email
	if len(ids) > 0 {
		client, _, ok := h.gmailClient(w, r)
		if !ok {
			invocation.Complete(false, nil)
			return
		}
		emails, err = assistant.FetchEmails(ctx, client, ids)
		if err != nil {
			invocation.CompleteWithError(err)
			writeError(w, err)
			return
		}
	}

	action := assistant.NewAction(intent, emails, req.Input)
	invocation.WithAction(intent.String(), "")

	sink := relay.NewResponseSink(w)
	completion, err := h.sc.Dispatcher().Dispatch(ctx, store, action, sink)
	if err != nil {
		invocation.CompleteWithError(err)
		writeError(w, err)
		return
	}
	invocation.WithAction(intent.String(), completion.ContextKey())

	outcome, err := completion.Wait(ctx)
	if err != nil {
		// The client went away. The generation shares its context, so it
		// stops too; wait for it before giving up the ResponseWriter.
		<-completion.Done()
		invocation.CompleteWithError(err)
		return
	}
	if outcome.Err != nil {
		invocation.CompleteWithError(outcome.Err)
		if !sink.Committed() {
			writeError(w, outcome.Err)
		}
		logger.Debug("assistant action failed",
			logging.MessageID(outcome.MessageID),
			slog.Bool("streamed", sink.Committed()),
			logging.Err(outcome.Err))
		return
	}

	// An empty reply still answers 200.
	sink.Commit()
	invocation.CompleteSuccess()
}
