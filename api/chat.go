package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/kmu-usr/airqa/internal/log"
	"github.com/kmu-usr/airqa/internal/qalog"
	"github.com/kmu-usr/airqa/internal/rag"
)

// Asker answers questions; the RAG pipeline implements it.
type Asker interface {
	Process(ctx context.Context, req rag.Request) (*rag.Result, error)
}

// FeedbackSaver persists answer corrections.
type FeedbackSaver interface {
	Save(user string, fb qalog.Feedback) (string, error)
}

// ChatHandler serves the interactive chat, feedback, and public ask
// endpoints.
type ChatHandler struct {
	asker    Asker
	feedback FeedbackSaver
	logger   log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(asker Asker, feedback FeedbackSaver, logger log.Logger) *ChatHandler {
	return &ChatHandler{asker: asker, feedback: feedback, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, auth *authenticator) {
	mux.HandleFunc("POST /chat", auth.requireUser(h.chat))
	mux.HandleFunc("POST /feedback", auth.requireUser(h.submitFeedback))
	mux.HandleFunc("POST /api/v1/public/rag/ask", auth.requireAPIKey(h.publicAsk))
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID  string `json:"session_id"`
	Question   string `json:"question"`
	Model      string `json:"model"`
	PromptMode string `json:"prompt_mode"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Answer            string `json:"answer"`
	ModelUsed         string `json:"model_used"`
	PromptModeUsed    string `json:"prompt_mode_used"`
	FormatModeUsed    string `json:"format_mode_used"`
	TemplateStyleUsed string `json:"template_style_used"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	user := userFrom(r)
	result, err := h.asker.Process(r.Context(), rag.Request{
		User:       user,
		SessionID:  req.SessionID,
		Question:   req.Question,
		Model:      req.Model,
		PromptMode: req.PromptMode,
	})
	if err != nil {
		h.writeProcessError(w, user, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Answer:            result.Answer,
		ModelUsed:         result.Model,
		PromptModeUsed:    string(result.PromptMode),
		FormatModeUsed:    string(result.FormatMode),
		TemplateStyleUsed: result.TemplateLabel,
	})
}

// writeProcessError maps pipeline failures onto HTTP statuses.
func (h *ChatHandler) writeProcessError(w http.ResponseWriter, user string, err error) {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "問題不能為空.", "")
	case errors.Is(err, rag.ErrRetrievalUnavailable):
		h.logger.Error("retrieval failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "向量資料庫檢索錯誤", "")
	case errors.Is(err, rag.ErrLLMBackend):
		h.logger.Error("llm backend failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError,
			"LLM 處理錯誤：與 Ollama 服務的連線中斷。請檢查 Ollama 服務狀態和系統資源。", "")
	case errors.Is(err, rag.ErrEmptyAnswer):
		h.logger.Error("llm returned no usable answer", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "LLM 回應或處理失敗.", "")
	default:
		h.logger.Error("chat request failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "LLM 回應或處理失敗或內部錯誤", "")
	}
}

// FeedbackRequest is the body of POST /feedback.
type FeedbackRequest struct {
	SessionID        string `json:"session_id"`
	Question         string `json:"question"`
	Model            string `json:"model"`
	OriginalAnswer   string `json:"original_answer"`
	ExpectedQuestion string `json:"user_expected_question"`
	ExpectedAnswer   string `json:"user_expected_answer"`
}

func (h *ChatHandler) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	user := userFrom(r)
	path, err := h.feedback.Save(user, qalog.Feedback{
		SessionID:        req.SessionID,
		Question:         req.Question,
		Model:            req.Model,
		OriginalAnswer:   req.OriginalAnswer,
		ExpectedQuestion: req.ExpectedQuestion,
		ExpectedAnswer:   req.ExpectedAnswer,
	})
	if err != nil {
		if errors.Is(err, qalog.ErrMissingExpectedAnswer) {
			writeError(w, http.StatusBadRequest, "預期正確回答不能為空", "")
			return
		}
		h.logger.Error("failed to save feedback", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "儲存回饋失敗.", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "✅ 使用者回饋已儲存",
		"filename": path,
	})
}

// PublicAskRequest is the body of POST /api/v1/public/rag/ask.
type PublicAskRequest struct {
	Question   string `json:"question"`
	SessionID  string `json:"session_id"`
	Model      string `json:"model"`
	PromptMode string `json:"prompt_mode"`
}

// PublicAskResponse extends the chat response with retrieval sources and
// timing breakdowns for API consumers.
type PublicAskResponse struct {
	Answer            string       `json:"answer"`
	ModelUsed         string       `json:"model_used"`
	PromptModeUsed    string       `json:"prompt_mode_used"`
	FormatModeUsed    string       `json:"format_mode_used"`
	TemplateStyleUsed string       `json:"template_style_used"`
	Sources           []rag.Source `json:"sources"`
	SessionID         string       `json:"session_id"`
	LLMSeconds        float64      `json:"llm_processing_time_seconds"`
	RetrievalSeconds  float64      `json:"retrieval_time_seconds"`
	TotalSeconds      float64      `json:"total_request_time_seconds"`
}

func (h *ChatHandler) publicAsk(w http.ResponseWriter, r *http.Request) {
	var req PublicAskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	identity := userFrom(r)
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = generateAPISessionID(identity)
		h.logger.Info("generated session for API consumer",
			"identity", identity, "session_id", sessionID)
	}

	result, err := h.asker.Process(r.Context(), rag.Request{
		User:       identity,
		SessionID:  sessionID,
		Question:   req.Question,
		Model:      req.Model,
		PromptMode: req.PromptMode,
	})
	if err != nil {
		h.writeProcessError(w, identity, err)
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	writeJSON(w, http.StatusOK, PublicAskResponse{
		Answer:            result.Answer,
		ModelUsed:         result.Model,
		PromptModeUsed:    string(result.PromptMode),
		FormatModeUsed:    string(result.FormatMode),
		TemplateStyleUsed: result.TemplateLabel,
		Sources:           sources,
		SessionID:         sessionID,
		LLMSeconds:        result.LLMSeconds,
		RetrievalSeconds:  result.RetrievalSeconds,
		TotalSeconds:      result.TotalSeconds,
	})
}

// generateAPISessionID builds a session ID for API consumers who sent
// none: a shortened identity plus timestamp and random suffix, using only
// characters the session store accepts.
func generateAPISessionID(identity string) string {
	prefix := strings.ReplaceAll(identity, "_", "-")
	if runes := []rune(prefix); len(runes) > 10 {
		prefix = string(runes[:10])
	}
	return fmt.Sprintf("api_%s_%d_%d", prefix, time.Now().UnixMilli(), 10000+rand.IntN(90000))
}
