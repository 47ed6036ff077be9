package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/adapter"
	"multi-llm-gateway/internal/domain/ports/repository"
	"multi-llm-gateway/internal/infra/logging"
	"multi-llm-gateway/internal/infra/metrics"
)

// ChatUseCase relays synchronous per-turn chat through the provider adapters
// and keeps the conversation history in the session repository.
type ChatUseCase interface {
	StartSession(ctx context.Context, providerID, chatModel string) (*model.ChatSession, error)
	SendMessage(ctx context.Context, sessionID, text string) (string, error)
	GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	EndSession(ctx context.Context, sessionID string) error
}

var _ ChatUseCase = (*chatUC)(nil)

type chatUC struct {
	sessions      repository.ChatSessionRepository
	ai            adapter.AIServiceAdapter
	defaultModels map[string]string // provider id -> model used when none given
	historyWindow int
	log           *zerolog.Logger
}

func NewChatUseCase(
	sessions repository.ChatSessionRepository,
	ai adapter.AIServiceAdapter,
	defaultModels map[string]string,
	historyWindow int,
	log *zerolog.Logger,
) ChatUseCase {
	if historyWindow <= 0 {
		historyWindow = 20
	}
	return &chatUC{
		sessions:      sessions,
		ai:            ai,
		defaultModels: defaultModels,
		historyWindow: historyWindow,
		log:           log,
	}
}

func (uc *chatUC) StartSession(ctx context.Context, providerID, chatModel string) (*model.ChatSession, error) {
	if providerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if chatModel == "" {
		chatModel = uc.defaultModels[providerID]
	}
	if chatModel == "" {
		return nil, domain.ErrUnknownProvider
	}
	session := model.NewChatSession(uuid.NewString(), providerID, chatModel)
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	logging.With(logging.WithSessID(ctx, session.ID), uc.log).
		Info().Str("provider", providerID).Str("model", chatModel).Msg("chat session started")
	return session, nil
}

func (uc *chatUC) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	defer logging.TraceDuration(uc.log, "ChatUC.SendMessage")()

	if text == "" {
		return "", domain.ErrInvalidArgument
	}
	session, err := uc.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	ctx = logging.WithSessID(logging.WithProvider(ctx, session.ProviderID), session.ID)
	log := logging.With(ctx, uc.log)

	session.AddMessage(uuid.NewString(), "user", text, 0)

	recent := session.GetRecentMessages(uc.historyWindow)
	msgs := make([]adapter.Message, 0, len(recent))
	for _, m := range recent {
		msgs = append(msgs, adapter.Message{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	reply, usage, err := uc.ai.ChatWithUsage(ctx, session.Model, msgs)
	latency := int(time.Since(start).Milliseconds())
	metrics.ObserveChatUsage(session.ProviderID, session.Model,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, latency, err == nil)
	if err != nil {
		log.Warn().Err(err).Msg("chat call failed")
		return "", err
	}

	session.AddMessage(uuid.NewString(), "assistant", reply, usage.CompletionTokens)
	if err := uc.sessions.Save(ctx, session); err != nil {
		log.Error().Err(err).Msg("save session")
		return "", err
	}
	return reply, nil
}

func (uc *chatUC) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	session, err := uc.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (uc *chatUC) EndSession(ctx context.Context, sessionID string) error {
	err := uc.sessions.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}
