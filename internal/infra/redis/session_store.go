package redis

import (
	"context"
	"encoding/json"
	"time"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.ChatSessionRepository = (*SessionStore)(nil)

// SessionStore keeps conversation histories in Redis with a TTL, so idle
// sessions age out without a sweeper.
type SessionStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewSessionStore(client RedisClient, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

func key(id string) string { return "chat_session:" + id }

func (s *SessionStore) Save(ctx context.Context, session *model.ChatSession) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(session.ID), data, s.ttl)
}

func (s *SessionStore) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	data, err := s.client.Get(ctx, key(id))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var session model.ChatSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, key(id))
}
