// Package gmailtest provides an in-process fake of the Gmail API endpoints
// used by the gmail package, for tests of its callers.
package gmailtest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxpilot/internal/gmail"
)

const base = "/gmail/v1/users/me/messages"

// Server is a fake Gmail API. Messages listed are the inbox, in insertion order.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	order    []string
	messages map[string]*gmailapi.Message
	deleted  []string
	archived []string
	status   int
}

// New starts a fake closed at test cleanup.
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{messages: map[string]*gmailapi.Message{}}
	s.srv = httptest.NewServer(s.handler())
	t.Cleanup(s.srv.Close)
	return s
}

// Client returns a gmail.Client talking to the fake.
func (s *Server) Client(t *testing.T, opts ...gmail.Option) *gmail.Client {
	t.Helper()
	opts = append(opts, gmail.WithAPIOptions(option.WithEndpoint(s.srv.URL+"/")))
	c, err := gmail.NewClient(context.Background(), s.srv.Client(), opts...)
	if err != nil {
		t.Fatalf("gmailtest: %v", err)
	}
	return c
}

// AddEmail adds a single-part HTML message to the inbox.
func (s *Server) AddEmail(id, from, subject, body string) {
	s.AddMessage(&gmailapi.Message{
		Id:       id,
		ThreadId: "t-" + id,
		Snippet:  body,
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmailapi.MessagePart{
			MimeType: "text/html",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "Subject", Value: subject},
				{Name: "Date", Value: "Mon, 2 Jan 2006 15:04:05 -0700"},
			},
			Body: &gmailapi.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
		},
	})
}

// AddMessage adds a raw API message to the inbox.
func (s *Server) AddMessage(m *gmailapi.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.Id]; !ok {
		s.order = append(s.order, m.Id)
	}
	s.messages[m.Id] = m
}

// FailWith makes every call answer with the given status. Zero restores
// normal answers.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Deleted returns the ids passed to batchDelete.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Archived returns the ids whose INBOX label was removed.
func (s *Server) Archived() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.archived...)
}

func (s *Server) failing(w http.ResponseWriter) bool {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	if status == 0 {
		return false
	}
	writeError(w, status)
	return true
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+base, func(w http.ResponseWriter, r *http.Request) {
		if s.failing(w) {
			return
		}
		s.mu.Lock()
		resp := gmailapi.ListMessagesResponse{}
		for _, id := range s.order {
			resp.Messages = append(resp.Messages, &gmailapi.Message{Id: id, ThreadId: s.messages[id].ThreadId})
		}
		s.mu.Unlock()
		writeJSON(w, resp)
	})
	mux.HandleFunc("GET "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		if s.failing(w) {
			return
		}
		s.mu.Lock()
		m, ok := s.messages[r.PathValue("id")]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound)
			return
		}
		writeJSON(w, m)
	})
	mux.HandleFunc("POST "+base+"/batchDelete", func(w http.ResponseWriter, r *http.Request) {
		if s.failing(w) {
			return
		}
		var req gmailapi.BatchDeleteMessagesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.deleted = append(s.deleted, req.Ids...)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST "+base+"/{id}/modify", func(w http.ResponseWriter, r *http.Request) {
		if s.failing(w) {
			return
		}
		id := r.PathValue("id")
		s.mu.Lock()
		_, ok := s.messages[id]
		if ok {
			s.archived = append(s.archived, id)
		}
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound)
			return
		}
		writeJSON(w, gmailapi.Message{Id: id})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s"}}`, code, http.StatusText(code))
}
