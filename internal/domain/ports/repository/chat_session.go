package repository

import (
	"context"

	"multi-llm-gateway/internal/domain/model"
)

// ChatSessionRepository stores per-provider conversation histories.
type ChatSessionRepository interface {
	Save(ctx context.Context, session *model.ChatSession) error
	FindByID(ctx context.Context, id string) (*model.ChatSession, error)
	Delete(ctx context.Context, id string) error
}
