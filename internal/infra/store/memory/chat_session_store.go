package memory

import (
	"context"
	"sync"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.ChatSessionRepository = (*ChatSessionStore)(nil)

// ChatSessionStore keeps conversation histories in process memory. Used in
// tests and in redis-less deployments.
type ChatSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.ChatSession
}

func NewChatSessionStore() *ChatSessionStore {
	return &ChatSessionStore{sessions: make(map[string]*model.ChatSession)}
}

func (s *ChatSessionStore) Save(ctx context.Context, session *model.ChatSession) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *ChatSessionStore) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copySession(sess), nil
}

func (s *ChatSessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func copySession(in *model.ChatSession) *model.ChatSession {
	cp := *in
	cp.Messages = append([]model.ChatMessage(nil), in.Messages...)
	return &cp
}
