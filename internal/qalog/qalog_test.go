package qalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kmu-usr/airqa/internal/log"
)

var fixedNow = time.Date(2025, 6, 10, 14, 30, 5, 123456000, time.UTC)

func newTestQAStore(t *testing.T) *QAStore {
	t.Helper()
	s := NewQAStore(t.TempDir(), log.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSourceType(t *testing.T) {
	tests := []struct {
		user string
		want string
	}{
		{user: "api_consumer_kmu_image_team", want: "api_call"},
		{user: "alice", want: "frontend_user"},
		{user: "api_user", want: "frontend_user"},
	}

	for _, tt := range tests {
		if got := SourceType(tt.user); got != tt.want {
			t.Errorf("SourceType(%q) = %q, want %q", tt.user, got, tt.want)
		}
	}
}

func TestQAStore_AppendCreatesDailyFile(t *testing.T) {
	s := newTestQAStore(t)

	rec := Record{
		SessionID:          "sess-1",
		Model:              "gemma3:12b",
		Question:           "小港空污的來源？",
		Answer:             "主要為工業排放。",
		LLMAttempts:        1,
		TemplateUsed:       "Structured List",
		RetrievedDocsCount: 10,
		TotalSeconds:       3.21,
	}
	if err := s.Append("alice", rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append("alice", rec); err != nil {
		t.Fatalf("second Append() error = %v", err)
	}

	path := filepath.Join(s.baseDir, "alice", "qa_log_2025-06-10.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("log has %d lines, want 2", len(lines))
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if got["username_source_type"] != "frontend_user" {
		t.Errorf("username_source_type = %v, want frontend_user", got["username_source_type"])
	}
	if got["user_identifier"] != "alice" {
		t.Errorf("user_identifier = %v, want alice", got["user_identifier"])
	}
	if got["question"] != "小港空污的來源？" {
		t.Errorf("question = %v, not preserved", got["question"])
	}
	if got["timestamp"] == "" {
		t.Error("timestamp not filled in")
	}
}

func TestQAStore_AppendAPIConsumer(t *testing.T) {
	s := newTestQAStore(t)

	if err := s.Append("api_consumer_kmu_image_team", Record{SessionID: "s"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	path := filepath.Join(s.baseDir, "api_consumer_kmu_image_team", "qa_log_2025-06-10.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["username_source_type"] != "api_call" {
		t.Errorf("username_source_type = %v, want api_call", got["username_source_type"])
	}
}

func TestQAStore_Provision(t *testing.T) {
	s := newTestQAStore(t)

	if err := s.Provision("bob"); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(s.baseDir, "bob"))
	if err != nil {
		t.Fatalf("user dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("provisioned path is not a directory")
	}
}

func TestFeedbackStore_Save(t *testing.T) {
	s := NewFeedbackStore(t.TempDir(), log.NewNop())
	s.now = func() time.Time { return fixedNow }

	path, err := s.Save("alice", Feedback{
		SessionID:      "sess-1",
		Question:       "空污來源？",
		Model:          "gemma3:12b",
		OriginalAnswer: "錯誤的回答",
		ExpectedAnswer: "正確的回答",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	wantName := "feedback_sess-1_20250610_143005123456.json"
	if filepath.Base(path) != wantName {
		t.Errorf("filename = %q, want %q", filepath.Base(path), wantName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading feedback: %v", err)
	}

	var got feedbackRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Question != "空污來源？" {
		t.Errorf("question = %q, want the original question when no rephrase given", got.Question)
	}
	if got.Answer != "正確的回答" {
		t.Errorf("answer = %q, want the expected answer", got.Answer)
	}
	if got.Metadata.Source != "manual_feedback" {
		t.Errorf("metadata.source = %q, want manual_feedback", got.Metadata.Source)
	}
	if got.Metadata.UserIdentifier != "alice" {
		t.Errorf("metadata.user_identifier = %q, want alice", got.Metadata.UserIdentifier)
	}
}

func TestFeedbackStore_SaveRephrasedQuestion(t *testing.T) {
	s := NewFeedbackStore(t.TempDir(), log.NewNop())
	s.now = func() time.Time { return fixedNow }

	path, err := s.Save("alice", Feedback{
		SessionID:        "sess-2",
		Question:         "原始問題",
		ExpectedQuestion: "更清楚的問題",
		ExpectedAnswer:   "回答",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading feedback: %v", err)
	}
	var got feedbackRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Question != "更清楚的問題" {
		t.Errorf("question = %q, want the rephrased question", got.Question)
	}
	if got.Metadata.OriginalQuestion != "原始問題" {
		t.Errorf("metadata.original_question = %q, want the original", got.Metadata.OriginalQuestion)
	}
}

func TestFeedbackStore_SaveRequiresExpectedAnswer(t *testing.T) {
	s := NewFeedbackStore(t.TempDir(), log.NewNop())

	_, err := s.Save("alice", Feedback{SessionID: "s", Question: "q"})
	if !errors.Is(err, ErrMissingExpectedAnswer) {
		t.Errorf("Save() error = %v, want ErrMissingExpectedAnswer", err)
	}
}
