// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multi-llm-gateway/internal/config"
	"multi-llm-gateway/internal/domain/ports/adapter"
	"multi-llm-gateway/internal/domain/ports/repository"
	aiAdapters "multi-llm-gateway/internal/infra/adapters/ai"
	"multi-llm-gateway/internal/infra/logging"
	"multi-llm-gateway/internal/infra/metrics"
	red "multi-llm-gateway/internal/infra/redis"
	"multi-llm-gateway/internal/infra/store/memory"
	"multi-llm-gateway/internal/infra/web"
	"multi-llm-gateway/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Session store (Redis when configured, in-memory otherwise) ----
	var sessions repository.ChatSessionRepository
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		sessions = red.NewSessionStore(redisClient, cfg.Redis.TTL)
		logger.Info().Str("url", cfg.Redis.URL).Msg("session store: redis")
	} else {
		sessions = memory.NewChatSessionStore()
		logger.Info().Msg("session store: in-memory")
	}
	jobs := memory.NewBatchJobStore()

	// ---- Provider adapters ----
	batchAdapters := make(map[string]adapter.BatchProviderAdapter)
	chatAdapters := make(map[string]adapter.AIServiceAdapter)
	defaultModels := make(map[string]string)

	if k := cfg.AI.Gemini.Key; k != "" {
		files := aiAdapters.NewGeminiFileTransport(k, cfg.AI.Gemini.BaseURL)
		g, err := aiAdapters.NewGeminiAdapter(ctx, k, cfg.AI.Gemini.BaseURL, cfg.AI.Gemini.Model, cfg.AI.MaxOutputTokens, files)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		batchAdapters["gemini"] = aiAdapters.NewLimitedBatch(g, cfg.AI.ConcurrentLimit)
		chatAdapters["gemini"] = g
		defaultModels["gemini"] = cfg.AI.Gemini.Model
	}
	if k := cfg.AI.OpenAI.Key; k != "" {
		files := aiAdapters.NewOpenAIFileTransport(k, cfg.AI.OpenAI.BaseURL)
		o, err := aiAdapters.NewOpenAIAdapter(k, cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.Model, cfg.AI.MaxOutputTokens, files)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		batchAdapters["openai"] = aiAdapters.NewLimitedBatch(o, cfg.AI.ConcurrentLimit)
		chatAdapters["openai"] = o
		defaultModels["openai"] = cfg.AI.OpenAI.Model
	}
	if k := cfg.AI.Claude.Key; k != "" {
		files := aiAdapters.NewClaudeFileTransport(k, cfg.AI.Claude.Version)
		c, err := aiAdapters.NewClaudeAdapter(k, cfg.AI.Claude.BaseURL, cfg.AI.Claude.Version, cfg.AI.Claude.Model, cfg.AI.MaxOutputTokens, files)
		if err != nil {
			logger.Fatal().Err(err).Msg("claude adapter")
		}
		batchAdapters["claude"] = aiAdapters.NewLimitedBatch(c, cfg.AI.ConcurrentLimit)
		chatAdapters["claude"] = c
		defaultModels["claude"] = cfg.AI.Claude.Model
	}
	if len(batchAdapters) == 0 {
		logger.Fatal().Msgf("no provider configured: set ai.gemini.key, ai.openai.key or ai.claude.key in %s", *cfgPath)
	}

	modelToProvider := make(map[string]string, len(defaultModels))
	for provider, m := range defaultModels {
		if m != "" {
			modelToProvider[m] = provider
		}
	}
	multi := aiAdapters.NewMultiAIAdapter(firstProvider(defaultModels), chatAdapters, modelToProvider)

	// ---- Use cases ----
	batchUC := usecase.NewBatchUseCase(jobs, batchAdapters, logger)
	chatUC := usecase.NewChatUseCase(sessions, multi, defaultModels, cfg.AI.HistoryWindow, logger)
	historyUC := usecase.NewHistoryUseCase(sessions, logger)

	// ---- HTTP server ----
	srv := web.NewServer(batchUC, chatUC, historyUC, logger)
	go func() {
		if err := srv.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}

func firstProvider(defaultModels map[string]string) string {
	for _, p := range []string{"gemini", "openai", "claude"} {
		if _, ok := defaultModels[p]; ok {
			return p
		}
	}
	return ""
}
