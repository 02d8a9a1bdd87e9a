package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps conversations in process memory. Contents are lost on
// restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
	}
}

func (s *MemoryStore) Create(ctx context.Context, title *string) (*Conversation, error) {
	c := &Conversation{ID: newID(), CreatedAt: now(), Title: title}

	s.mu.Lock()
	s.conversations[c.ID] = c
	s.messages[c.ID] = nil
	s.mu.Unlock()

	out := *c
	return &out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) Append(ctx context.Context, conversationID, role, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	m := Message{
		ID:             newID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return &m, nil
}

// List returns a copy of the conversation's messages in append order.
func (s *MemoryStore) List(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
