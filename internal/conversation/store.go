package conversation

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Conversation is the transcript of one context. It is owned by its Store;
// accessors take the store lock and return copies.
type Conversation struct {
	store    *Store
	key      string
	messages []*Message
}

// Key returns the context key of the conversation.
func (c *Conversation) Key() string {
	return c.key
}

// Messages returns a copy of the messages in creation order.
func (c *Conversation) Messages() []Message {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return c.copyMessages()
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return len(c.messages)
}

func (c *Conversation) copyMessages() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
	}
	return out
}

// Store holds the conversations of one user. It is safe for concurrent use;
// every operation is atomic with respect to the others.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	// byID locates a message and the conversation that owns it.
	byID   map[string]*Message
	owner  map[string]string
	active *Conversation
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store whose active conversation is the general one.
func NewStore(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*Conversation),
		byID:          make(map[string]*Message),
		owner:         make(map[string]string),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.active = s.createLocked(Context{Key: GeneralKey})
	return s
}

// SwitchContext makes the conversation for c.Key active, creating it with a
// greeting if needed. An existing conversation is returned unchanged. An empty
// key selects the general conversation.
func (s *Store) SwitchContext(c Context) *Conversation {
	if c.Key == "" {
		c.Key = GeneralKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[c.Key]
	if !ok {
		conv = s.createLocked(c)
	}
	s.active = conv
	return conv
}

// Active returns the active conversation.
func (s *Store) Active() *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ActiveKey returns the key of the active conversation.
func (s *Store) ActiveKey() string {
	return s.Active().key
}

// Get returns the conversation for key, if any.
func (s *Store) Get(key string) (*Conversation, bool) {
	if key == "" {
		key = GeneralKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[key]
	return conv, ok
}

// Snapshot copies the conversation for key.
func (s *Store) Snapshot(key string) (Snapshot, bool) {
	if key == "" {
		key = GeneralKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[key]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Key:      conv.key,
		Active:   conv == s.active,
		Messages: conv.copyMessages(),
	}, true
}

// Keys returns the keys of all stored conversations.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.conversations))
	for k := range s.conversations {
		keys = append(keys, k)
	}
	return keys
}

// AppendUserMessage adds a complete user message to the active conversation
// and returns its id.
func (s *Store) AppendUserMessage(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(s.active, RoleUser, text, true).ID
}

// BeginAssistantMessage adds an empty, incomplete assistant message to the
// active conversation and returns its id.
func (s *Store) BeginAssistantMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(s.active, RoleAssistant, "", false).ID
}

// BeginReply starts an exchange in the active conversation under a single
// lock. admit is called with the active key first; if it returns an error
// nothing is appended and the error is returned. Otherwise a non-empty
// userText is appended as a user message, followed by an empty assistant
// message whose id is returned with the key.
//
// admit runs with the store locked and must not call back into the Store.
func (s *Store) BeginReply(userText string, admit func(key string) error) (key, messageID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.active
	if admit != nil {
		if err := admit(conv.key); err != nil {
			return "", "", err
		}
	}
	if userText != "" {
		s.appendLocked(conv, RoleUser, userText, true)
	}
	return conv.key, s.appendLocked(conv, RoleAssistant, "", false).ID, nil
}

// AppendFragment appends text to the message with the given id. It reports
// false and changes nothing if the message no longer exists or is complete.
func (s *Store) AppendFragment(messageID, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok || m.Complete {
		return false
	}
	m.Text += text
	return true
}

// Complete marks a streaming message as finished.
func (s *Store) Complete(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok || m.Complete {
		return false
	}
	m.Complete = true
	return true
}

// Fail replaces the text of a streaming message with an inline error and
// completes it.
func (s *Store) Fail(messageID string, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok || m.Complete {
		return false
	}
	m.Text = ErrorPrefix + cause.Error()
	m.Failed = true
	m.Complete = true
	return true
}

// Message returns a copy of the message with the given id.
func (s *Store) Message(messageID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[messageID]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// ConversationOf returns the key of the conversation owning messageID.
func (s *Store) ConversationOf(messageID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.owner[messageID]
	return key, ok
}

// Discard drops the conversation for key and its messages. Discarding the
// active conversation makes the general conversation active. The general
// conversation itself is reset to a fresh greeting.
func (s *Store) Discard(key string) bool {
	if key == "" {
		key = GeneralKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		return false
	}
	for _, m := range conv.messages {
		delete(s.byID, m.ID)
		delete(s.owner, m.ID)
	}
	delete(s.conversations, key)

	if key == GeneralKey || s.active == conv {
		general, ok := s.conversations[GeneralKey]
		if !ok {
			general = s.createLocked(Context{Key: GeneralKey})
		}
		s.active = general
	}
	return true
}

func (s *Store) createLocked(c Context) *Conversation {
	conv := &Conversation{store: s, key: c.Key}
	s.conversations[c.Key] = conv
	s.appendLocked(conv, RoleAssistant, Greeting(c), true)
	return conv
}

func (s *Store) appendLocked(conv *Conversation, role Role, text string, complete bool) *Message {
	m := &Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
		Complete:  complete,
	}
	conv.messages = append(conv.messages, m)
	s.byID[m.ID] = m
	s.owner[m.ID] = conv.key
	return m
}
