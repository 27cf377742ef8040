// Package qalog persists question/answer records and user feedback as
// plain files under per-user directories, one JSONL file per day for QA
// records and one JSON file per feedback submission.
package qalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kmu-usr/airqa/internal/log"
)

// ErrMissingExpectedAnswer is returned when feedback carries no corrected
// answer, which is the one field that makes a submission useful.
var ErrMissingExpectedAnswer = errors.New("expected answer must not be empty")

// timestampLayout is fixed width with microsecond precision so records
// sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// apiConsumerPrefix marks identities provisioned through API keys rather
// than the web frontend.
const apiConsumerPrefix = "api_consumer_"

// Record is one answered question, appended to the user's daily log.
type Record struct {
	UsernameSourceType  string  `json:"username_source_type"`
	UserIdentifier      string  `json:"user_identifier"`
	SessionID           string  `json:"session_id"`
	Timestamp           string  `json:"timestamp"`
	Model               string  `json:"model"`
	PromptModeRequested string  `json:"prompt_mode_requested"`
	FormatModeDetected  string  `json:"format_mode_detected"`
	Question            string  `json:"question"`
	Answer              string  `json:"answer"`
	LLMAttempts         int     `json:"llm_attempts"`
	TemplateUsed        string  `json:"template_used"`
	RetrievedDocsCount  int     `json:"retrieved_docs_count"`
	TotalSeconds        float64 `json:"total_processing_time_seconds"`
}

// QAStore appends QA records to per-user daily JSONL files.
type QAStore struct {
	baseDir string
	logger  log.Logger
	now     func() time.Time
}

// NewQAStore creates a QAStore rooted at baseDir.
func NewQAStore(baseDir string, logger log.Logger) *QAStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &QAStore{baseDir: baseDir, logger: logger, now: time.Now}
}

// Provision creates the user's log directory.
func (s *QAStore) Provision(user string) error {
	if err := os.MkdirAll(s.userDir(user), 0o750); err != nil {
		return fmt.Errorf("failed to provision qa log dir for %q: %w", user, err)
	}
	return nil
}

// Append writes one record to the user's log for today. The source type
// and timestamp are filled in when the caller leaves them empty.
func (s *QAStore) Append(user string, rec Record) error {
	now := s.now()
	if rec.UserIdentifier == "" {
		rec.UserIdentifier = user
	}
	if rec.UsernameSourceType == "" {
		rec.UsernameSourceType = SourceType(user)
	}
	if rec.Timestamp == "" {
		rec.Timestamp = now.Format(timestampLayout)
	}

	dir := s.userDir(user)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create qa log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("qa_log_%s.jsonl", now.Format("2006-01-02")))
	line, err := marshalLine(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal qa record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open qa log %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append qa record: %w", err)
	}

	s.logger.Debug("qa record appended", "user", user, "session_id", rec.SessionID, "file", path)
	return nil
}

func (s *QAStore) userDir(user string) string {
	return filepath.Join(s.baseDir, user)
}

// SourceType classifies an identity by how it was provisioned.
func SourceType(user string) string {
	if strings.HasPrefix(user, apiConsumerPrefix) {
		return "api_call"
	}
	return "frontend_user"
}

// marshalLine renders a record as one JSONL line without HTML escaping,
// keeping the Chinese text readable in the log files.
func marshalLine(v any) ([]byte, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
