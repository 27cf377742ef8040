package api

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/kmu-usr/airqa/internal/rag"
)

func TestChat_Success(t *testing.T) {
	handler, asker, _, _ := newTestServer(t)

	w := doJSON(handler, http.MethodPost, "/chat", ChatRequest{
		SessionID: "sess-1",
		Question:  "高雄的空氣品質如何？",
	}, asUser("Alice"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody[ChatResponse](t, w)
	if resp.Answer == "" {
		t.Error("answer is empty")
	}
	if resp.ModelUsed != "gemma3:12b" {
		t.Errorf("model_used = %q, want %q", resp.ModelUsed, "gemma3:12b")
	}
	if resp.PromptModeUsed != "default" {
		t.Errorf("prompt_mode_used = %q, want %q", resp.PromptModeUsed, "default")
	}
	if resp.TemplateStyleUsed != "Default (Format: default)" {
		t.Errorf("template_style_used = %q", resp.TemplateStyleUsed)
	}

	// The username must reach the pipeline sanitized.
	if asker.lastReq.User != "alice" {
		t.Errorf("pipeline user = %q, want %q", asker.lastReq.User, "alice")
	}
	if asker.lastReq.SessionID != "sess-1" {
		t.Errorf("pipeline session = %q, want %q", asker.lastReq.SessionID, "sess-1")
	}
}

func TestChat_InvalidBody(t *testing.T) {
	handler, _, _, _ := newTestServer(t)

	req := doJSON(handler, http.MethodPost, "/chat", nil, asUser("alice"))
	if req.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", req.Code, http.StatusBadRequest)
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "empty question",
			err:        rag.ErrEmptyQuestion,
			wantStatus: http.StatusBadRequest,
			wantError:  "問題不能為空.",
		},
		{
			name:       "retrieval unavailable",
			err:        rag.ErrRetrievalUnavailable,
			wantStatus: http.StatusInternalServerError,
			wantError:  "向量資料庫檢索錯誤",
		},
		{
			name:       "llm backend down",
			err:        rag.ErrLLMBackend,
			wantStatus: http.StatusInternalServerError,
			wantError:  "LLM 處理錯誤：與 Ollama 服務的連線中斷。請檢查 Ollama 服務狀態和系統資源。",
		},
		{
			name:       "empty answer after retries",
			err:        rag.ErrEmptyAnswer,
			wantStatus: http.StatusInternalServerError,
			wantError:  "LLM 回應或處理失敗.",
		},
		{
			name:       "unexpected failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "LLM 回應或處理失敗或內部錯誤",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, asker, _, _ := newTestServer(t)
			asker.err = tt.err

			w := doJSON(handler, http.MethodPost, "/chat", ChatRequest{
				SessionID: "sess-1",
				Question:  "問題",
			}, asUser("alice"))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeBody[ErrorResponse](t, w)
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestFeedback_Success(t *testing.T) {
	handler, _, _, feedback := newTestServer(t)

	w := doJSON(handler, http.MethodPost, "/feedback", FeedbackRequest{
		SessionID:      "sess-1",
		Question:       "原始問題",
		Model:          "gemma3:12b",
		OriginalAnswer: "原始回答",
		ExpectedAnswer: "正確的回答",
	}, asUser("alice"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody[map[string]string](t, w)
	if resp["message"] != "✅ 使用者回饋已儲存" {
		t.Errorf("message = %q", resp["message"])
	}
	if resp["filename"] == "" {
		t.Error("filename is empty")
	}
	if len(feedback.saved) != 1 {
		t.Fatalf("saved %d feedback records, want 1", len(feedback.saved))
	}
	if got := feedback.saved[0].ExpectedAnswer; got != "正確的回答" {
		t.Errorf("saved expected answer = %q", got)
	}
}

func TestFeedback_MissingExpectedAnswer(t *testing.T) {
	handler, _, _, _ := newTestServer(t)

	w := doJSON(handler, http.MethodPost, "/feedback", FeedbackRequest{
		SessionID: "sess-1",
		Question:  "原始問題",
	}, asUser("alice"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := decodeBody[ErrorResponse](t, w)
	if resp.Error != "預期正確回答不能為空" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestFeedback_SaveFailure(t *testing.T) {
	handler, _, _, feedback := newTestServer(t)
	feedback.err = errors.New("disk full")

	w := doJSON(handler, http.MethodPost, "/feedback", FeedbackRequest{
		SessionID:      "sess-1",
		ExpectedAnswer: "正確的回答",
	}, asUser("alice"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	resp := decodeBody[ErrorResponse](t, w)
	if resp.Error != "儲存回饋失敗." {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestPublicAsk_Success(t *testing.T) {
	handler, asker, _, _ := newTestServer(t)

	w := doJSON(handler, http.MethodPost, "/api/v1/public/rag/ask", PublicAskRequest{
		Question:  "USR 計畫是什麼？",
		SessionID: "partner-session",
	}, map[string]string{"X-API-Key": "test-key-12345678901234567890"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody[PublicAskResponse](t, w)
	if resp.SessionID != "partner-session" {
		t.Errorf("session_id = %q, want %q", resp.SessionID, "partner-session")
	}
	if len(resp.Sources) != 1 {
		t.Errorf("got %d sources, want 1", len(resp.Sources))
	}
	if resp.TotalSeconds != 1.70 {
		t.Errorf("total_request_time_seconds = %v, want 1.70", resp.TotalSeconds)
	}
	if asker.lastReq.User != "api_consumer_partner" {
		t.Errorf("pipeline user = %q, want the API key identity", asker.lastReq.User)
	}
}

func TestPublicAsk_GeneratesSessionID(t *testing.T) {
	handler, asker, _, _ := newTestServer(t)

	w := doJSON(handler, http.MethodPost, "/api/v1/public/rag/ask", PublicAskRequest{
		Question: "USR 計畫是什麼？",
	}, map[string]string{"X-API-Key": "test-key-12345678901234567890"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	resp := decodeBody[PublicAskResponse](t, w)
	if resp.SessionID == "" {
		t.Fatal("session_id is empty")
	}
	if resp.SessionID != asker.lastReq.SessionID {
		t.Errorf("response session %q differs from pipeline session %q",
			resp.SessionID, asker.lastReq.SessionID)
	}

	// Identity underscores become dashes and the prefix is capped at 10
	// characters, so the generated ID stays inside one path segment.
	pattern := regexp.MustCompile(`^api_api-consum_\d+_\d{5}$`)
	if !pattern.MatchString(resp.SessionID) {
		t.Errorf("session_id = %q does not match the generated form", resp.SessionID)
	}
	if strings.Contains(resp.SessionID[4:], "api_consumer") {
		t.Errorf("session_id = %q leaks raw identity underscores", resp.SessionID)
	}
}

func TestPublicAsk_NilSourcesBecomesEmptyArray(t *testing.T) {
	handler, asker, _, _ := newTestServer(t)
	asker.result.Sources = nil

	w := doJSON(handler, http.MethodPost, "/api/v1/public/rag/ask", PublicAskRequest{
		Question:  "問題",
		SessionID: "s1",
	}, map[string]string{"X-API-Key": "test-key-12345678901234567890"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"sources":[]`) {
		t.Errorf("body %q should contain an empty sources array, not null", w.Body.String())
	}
}

func TestGenerateAPISessionID(t *testing.T) {
	id := generateAPISessionID("api_consumer_partner")

	pattern := regexp.MustCompile(`^api_api-consum_\d+_\d{5}$`)
	if !pattern.MatchString(id) {
		t.Errorf("generateAPISessionID = %q, want api_<prefix>_<millis>_<5 digits>", id)
	}
}

func TestGenerateAPISessionID_ShortIdentity(t *testing.T) {
	id := generateAPISessionID("kmu")

	pattern := regexp.MustCompile(`^api_kmu_\d+_\d{5}$`)
	if !pattern.MatchString(id) {
		t.Errorf("generateAPISessionID = %q, short identities stay whole", id)
	}
}
