package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/repository"
)

// HistoryUseCase edits a chat session's message history in place: deleting,
// reordering, truncating, and clearing recent exchanges.
type HistoryUseCase interface {
	DeleteMessage(ctx context.Context, sessionID string, index int) error
	MoveMessage(ctx context.Context, sessionID string, from, to int) error
	TruncateAfter(ctx context.Context, sessionID string, index int) error
	// ClearLast removes the last count messages. An odd count is rounded up
	// by one so user/assistant exchanges are removed whole. Returns how many
	// messages were actually removed.
	ClearLast(ctx context.Context, sessionID string, count int) (int, error)
}

var _ HistoryUseCase = (*historyUC)(nil)

type historyUC struct {
	sessions repository.ChatSessionRepository
	log      *zerolog.Logger
}

func NewHistoryUseCase(sessions repository.ChatSessionRepository, log *zerolog.Logger) HistoryUseCase {
	return &historyUC{sessions: sessions, log: log}
}

func (uc *historyUC) DeleteMessage(ctx context.Context, sessionID string, index int) error {
	return uc.edit(ctx, sessionID, func(s *model.ChatSession) error {
		if index < 0 || index >= len(s.Messages) {
			return domain.ErrInvalidArgument
		}
		s.Messages = append(s.Messages[:index], s.Messages[index+1:]...)
		return nil
	})
}

func (uc *historyUC) MoveMessage(ctx context.Context, sessionID string, from, to int) error {
	return uc.edit(ctx, sessionID, func(s *model.ChatSession) error {
		n := len(s.Messages)
		if from < 0 || from >= n || to < 0 || to >= n {
			return domain.ErrInvalidArgument
		}
		if from == to {
			return nil
		}
		msg := s.Messages[from]
		rest := append(s.Messages[:from], s.Messages[from+1:]...)
		s.Messages = append(rest[:to], append([]model.ChatMessage{msg}, rest[to:]...)...)
		return nil
	})
}

// TruncateAfter keeps messages [0..index] and drops everything after.
func (uc *historyUC) TruncateAfter(ctx context.Context, sessionID string, index int) error {
	return uc.edit(ctx, sessionID, func(s *model.ChatSession) error {
		if index < -1 || index >= len(s.Messages) {
			return domain.ErrInvalidArgument
		}
		s.Messages = s.Messages[:index+1]
		return nil
	})
}

func (uc *historyUC) ClearLast(ctx context.Context, sessionID string, count int) (int, error) {
	if count <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	if count%2 == 1 {
		count++
	}
	removed := 0
	err := uc.edit(ctx, sessionID, func(s *model.ChatSession) error {
		if count > len(s.Messages) {
			count = len(s.Messages)
		}
		removed = count
		s.Messages = s.Messages[:len(s.Messages)-count]
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (uc *historyUC) edit(ctx context.Context, sessionID string, fn func(*model.ChatSession) error) error {
	session, err := uc.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := fn(session); err != nil {
		return err
	}
	return uc.sessions.Save(ctx, session)
}
