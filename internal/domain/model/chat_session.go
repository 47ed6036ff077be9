package model

import (
	"time"
)

// ChatMessage represents one message within a per-provider conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // "user" | "assistant" | "system"
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession is the aggregate root for one provider's conversation history
// within a caller session.
type ChatSession struct {
	ID         string        `json:"id"`
	ProviderID string        `json:"provider_id"`
	Model      string        `json:"model"`
	Messages   []ChatMessage `json:"messages"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func NewChatSession(id, providerID, model string) *ChatSession {
	return &ChatSession{
		ID:         id,
		ProviderID: providerID,
		Model:      model,
		Messages:   make([]ChatMessage, 0, 8),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func (s *ChatSession) AddMessage(id, role, content string, tokens int) {
	s.Messages = append(s.Messages, ChatMessage{
		ID:        id,
		SessionID: s.ID,
		Role:      role,
		Content:   content,
		Tokens:    tokens,
		Timestamp: time.Now(),
	})
	s.UpdatedAt = time.Now()
}

func (s *ChatSession) GetRecentMessages(n int) []ChatMessage {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}
