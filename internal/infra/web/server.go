package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"multi-llm-gateway/internal/usecase"
)

// Server exposes the gateway's use cases as a JSON API.
type Server struct {
	batchUC   usecase.BatchUseCase
	chatUC    usecase.ChatUseCase
	historyUC usecase.HistoryUseCase
	log       *zerolog.Logger
	httpSrv   *http.Server
}

func NewServer(
	batchUC usecase.BatchUseCase,
	chatUC usecase.ChatUseCase,
	historyUC usecase.HistoryUseCase,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		batchUC:   batchUC,
		chatUC:    chatUC,
		historyUC: historyUC,
		log:       logger,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/batch", s.handleBatchSubmit)
		r.Post("/batch/status", s.handleBatchStatus)
		r.Post("/batch/results", s.handleBatchResults)

		r.Post("/chat/sessions", s.handleChatStart)
		r.Post("/chat/sessions/{sessionID}/messages", s.handleChatSend)
		r.Get("/chat/sessions/{sessionID}", s.handleChatGet)
		r.Delete("/chat/sessions/{sessionID}", s.handleChatEnd)

		r.Delete("/chat/sessions/{sessionID}/messages/{index}", s.handleHistoryDelete)
		r.Patch("/chat/sessions/{sessionID}/messages", s.handleHistoryEdit)
	})

	return r
}

func (s *Server) Start(port int) error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
