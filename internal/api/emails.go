package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teemow/inboxpilot/internal/gmail"
	"github.com/teemow/inboxpilot/internal/logging"
	"github.com/teemow/inboxpilot/internal/tools/batch"
)

type idsRequest struct {
	IDs []string `json:"ids"`
}

// gmailClient returns the Gmail client of the request's session, answering
// the request itself on failure.
func (h *Handler) gmailClient(w http.ResponseWriter, r *http.Request) (*gmail.Client, string, bool) {
	session, _ := SessionFromContext(r.Context())
	client, err := h.sc.GmailClient(session)
	if err != nil {
		writeError(w, err)
		return nil, "", false
	}
	return client, session, true
}

// ListEmails serves GET /api/emails.
func (h *Handler) ListEmails(w http.ResponseWriter, r *http.Request) {
	client, _, ok := h.gmailClient(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := gmail.Filter{
		Subject:    q.Get("subject"),
		Contains:   q.Get("contains"),
		SingleDate: q.Get("date"),
		DateStart:  q.Get("dateStart"),
		DateEnd:    q.Get("dateEnd"),
		Senders:    gmail.ParseSenders(q.Get("senders")),
	}

	page, err := client.ListMessages(r.Context(), filter.Query(), q.Get("pageToken"))
	if err != nil {
		logging.FromContext(r.Context(), h.logger).Warn("failed to list emails", logging.Err(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetEmail serves GET /api/emails/{id}.
func (h *Handler) GetEmail(w http.ResponseWriter, r *http.Request) {
	client, _, ok := h.gmailClient(w, r)
	if !ok {
		return
	}

	email, err := client.GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, email)
}

// DeleteEmails serves DELETE /api/emails. The conversations of the deleted
// emails are discarded.
func (h *Handler) DeleteEmails(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if len(req.IDs) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "ids are required")
		return
	}

	client, session, ok := h.gmailClient(w, r)
	if !ok {
		return
	}

	deleted, err := client.DeleteMessages(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}

	if store, err := h.sc.Store(session); err == nil {
		for _, id := range req.IDs {
			store.Discard(id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

// ArchiveEmails serves POST /api/emails/archive.
func (h *Handler) ArchiveEmails(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if len(req.IDs) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "ids are required")
		return
	}

	client, _, ok := h.gmailClient(w, r)
	if !ok {
		return
	}

	results, err := client.ArchiveMessages(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch.Summarize(results))
}
