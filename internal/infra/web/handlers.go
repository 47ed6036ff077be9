package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/usecase"
)

type batchSubmitRequest struct {
	Method       string   `json:"method"` // "text_input" (default) | "file_upload"
	Prompts      []string `json:"prompts"`
	Providers    []string `json:"providers"`
	SingleChat   bool     `json:"single_chat"`
	Temperature  float64  `json:"temperature"`
	SystemPrompt string   `json:"system_prompt"`
	FilePath     string   `json:"file_path"`
}

func (s *Server) handleBatchSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	acks, err := s.batchUC.Submit(ctx, usecase.SubmitParams{
		Method:       model.SubmissionMethod(req.Method),
		Prompts:      req.Prompts,
		ProviderIDs:  req.Providers,
		SingleChat:   req.SingleChat,
		Temperature:  req.Temperature,
		SystemPrompt: req.SystemPrompt,
		FilePath:     req.FilePath,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, struct {
		Jobs []usecase.SubmissionAck `json:"jobs"`
	}{Jobs: acks})
}

type batchStatusRequest struct {
	JobIDs []string `json:"job_ids"`

	// File-upload polling path: look a job up by the provider's own handle.
	Provider      string `json:"provider,omitempty"`
	ProviderJobID string `json:"provider_job_id,omitempty"`
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ProviderJobID != "" {
		view, err := s.batchUC.StatusByProviderJob(ctx, req.Provider, req.ProviderJobID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Statuses []usecase.StatusView `json:"statuses"`
		}{Statuses: []usecase.StatusView{view}})
		return
	}

	views, err := s.batchUC.Status(ctx, req.JobIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Statuses []usecase.StatusView `json:"statuses"`
	}{Statuses: views})
}

type batchResultsRequest struct {
	JobIDs []string `json:"job_ids"`
}

func (s *Server) handleBatchResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	views, err := s.batchUC.Results(ctx, req.JobIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Results []usecase.ResultView `json:"results"`
	}{Results: views})
}

type chatStartRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (s *Server) handleChatStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := s.chatUC.StartSession(ctx, req.Provider, req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type chatSendRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := s.chatUC.SendMessage(ctx, sessionID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Reply string `json:"reply"`
	}{Reply: reply})
}

func (s *Server) handleChatGet(w http.ResponseWriter, r *http.Request) {
	session, err := s.chatUC.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleChatEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.chatUC.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid message index", http.StatusBadRequest)
		return
	}
	if err := s.historyUC.DeleteMessage(r.Context(), sessionID, index); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyEditRequest struct {
	Op    string `json:"op"` // "move" | "truncate_after" | "clear_last"
	From  int    `json:"from"`
	To    int    `json:"to"`
	Index int    `json:"index"`
	Count int    `json:"count"`
}

func (s *Server) handleHistoryEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req historyEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Op {
	case "move":
		if err := s.historyUC.MoveMessage(ctx, sessionID, req.From, req.To); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "truncate_after":
		if err := s.historyUC.TruncateAfter(ctx, sessionID, req.Index); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "clear_last":
		removed, err := s.historyUC.ClearLast(ctx, sessionID, req.Count)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Removed int `json:"removed"`
		}{Removed: removed})
	default:
		http.Error(w, "Unknown history operation", http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrNoProviders),
		errors.Is(err, domain.ErrNoPrompts),
		errors.Is(err, domain.ErrNoJobIDs),
		errors.Is(err, domain.ErrUnknownProvider),
		errors.Is(err, domain.ErrUnsupportedMethod):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
