package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teemow/inboxpilot/internal/conversation"
)

type switchRequest struct {
	Key     string `json:"key"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*conversation.Store, bool) {
	session, _ := SessionFromContext(r.Context())
	store, err := h.sc.Store(session)
	if err != nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	return store, true
}

func writeSnapshot(w http.ResponseWriter, store *conversation.Store, key string) {
	snapshot, ok := store.Snapshot(key)
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetConversation serves GET /api/conversation.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	writeSnapshot(w, store, store.ActiveKey())
}

// SwitchConversation serves PUT /api/conversation. An empty key selects the
// general conversation.
func (h *Handler) SwitchConversation(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}

	conv := store.SwitchContext(conversation.Context{
		Key:     strings.TrimSpace(req.Key),
		Sender:  req.Sender,
		Subject: req.Subject,
	})
	writeSnapshot(w, store, conv.Key())
}

// GetConversationByKey serves GET /api/conversations/{key}.
func (h *Handler) GetConversationByKey(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	writeSnapshot(w, store, chi.URLParam(r, "key"))
}
