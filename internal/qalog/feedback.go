package qalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kmu-usr/airqa/internal/log"
)

// Feedback is a user's correction of an answer. ExpectedAnswer is
// required; ExpectedQuestion may rephrase the original question.
type Feedback struct {
	SessionID        string
	Question         string
	Model            string
	OriginalAnswer   string
	ExpectedQuestion string
	ExpectedAnswer   string
}

// feedbackRecord is the stored shape: the corrected pair on top, the
// original exchange preserved under metadata for later curation.
type feedbackRecord struct {
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Metadata feedbackMetadata `json:"metadata"`
}

type feedbackMetadata struct {
	Source           string `json:"source"`
	OriginalQuestion string `json:"original_question"`
	OriginalAnswer   string `json:"original_answer"`
	SessionID        string `json:"session_id"`
	ModelUsed        string `json:"model_used"`
	Timestamp        string `json:"timestamp"`
	UserIdentifier   string `json:"user_identifier"`
}

// FeedbackStore writes feedback submissions as individual JSON files
// under per-user directories.
type FeedbackStore struct {
	baseDir string
	logger  log.Logger
	now     func() time.Time
}

// NewFeedbackStore creates a FeedbackStore rooted at baseDir.
func NewFeedbackStore(baseDir string, logger log.Logger) *FeedbackStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &FeedbackStore{baseDir: baseDir, logger: logger, now: time.Now}
}

// Provision creates the user's feedback directory.
func (s *FeedbackStore) Provision(user string) error {
	if err := os.MkdirAll(s.userDir(user), 0o750); err != nil {
		return fmt.Errorf("failed to provision feedback dir for %q: %w", user, err)
	}
	return nil
}

// Save persists one feedback submission and returns the file path.
// The filename carries the session ID and a microsecond timestamp so
// repeated submissions never collide.
func (s *FeedbackStore) Save(user string, fb Feedback) (string, error) {
	if fb.ExpectedAnswer == "" {
		return "", ErrMissingExpectedAnswer
	}

	now := s.now()

	question := fb.ExpectedQuestion
	if question == "" {
		question = fb.Question
	}

	record := feedbackRecord{
		Question: question,
		Answer:   fb.ExpectedAnswer,
		Metadata: feedbackMetadata{
			Source:           "manual_feedback",
			OriginalQuestion: fb.Question,
			OriginalAnswer:   fb.OriginalAnswer,
			SessionID:        fb.SessionID,
			ModelUsed:        fb.Model,
			Timestamp:        now.Format(timestampLayout),
			UserIdentifier:   user,
		},
	}

	dir := s.userDir(user)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create feedback dir: %w", err)
	}

	ts := now.Format("20060102_150405") + fmt.Sprintf("%06d", now.Nanosecond()/1000)
	path := filepath.Join(dir, fmt.Sprintf("feedback_%s_%s.json", fb.SessionID, ts))

	data, err := marshalIndented(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal feedback: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write feedback %s: %w", path, err)
	}

	s.logger.Info("feedback saved", "user", user, "session_id", fb.SessionID, "file", path)
	return path, nil
}

func (s *FeedbackStore) userDir(user string) string {
	return filepath.Join(s.baseDir, user)
}

// marshalIndented renders indented JSON without HTML escaping.
func marshalIndented(v any) ([]byte, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
