// Package session persists per-user conversation sessions as JSON files.
//
// Layout under the base directory:
//
//	<base>/<user>/chats_metadata.json         map of session ID to Meta
//	<base>/<user>/chat_messages/<id>.json     ordered Message array
//
// The store is deliberately lock-free: concurrent writers to the same
// session race and the last write wins. State that matters for answering
// (history) is re-read per request, so a lost update degrades history, not
// correctness.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kmu-usr/airqa/internal/log"
)

// Store reads and writes session files for all users.
type Store struct {
	baseDir string
	logger  log.Logger
}

// NewStore creates a session store rooted at baseDir.
func NewStore(baseDir string, logger log.Logger) *Store {
	return &Store{baseDir: baseDir, logger: logger}
}

// Provision creates the directory tree for a user. Called on every
// authenticated request; MkdirAll is a no-op when the tree exists.
func (s *Store) Provision(user string) error {
	dir, err := s.userDir(user)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, "chat_messages"), 0o750); err != nil {
		return fmt.Errorf("provisioning session directory: %w", err)
	}
	return nil
}

// List returns the user's sessions sorted by last update, newest first.
func (s *Store) List(user string) ([]ListItem, error) {
	meta, err := s.loadMetadata(user)
	if err != nil {
		return nil, err
	}

	items := make([]ListItem, 0, len(meta))
	for id, m := range meta {
		title := m.Title
		if title == "" {
			title = "無標題"
		}
		items = append(items, ListItem{ID: id, Title: title, UpdatedAt: m.UpdatedAt})
	}
	slices.SortFunc(items, func(a, b ListItem) int {
		return strings.Compare(b.UpdatedAt, a.UpdatedAt)
	})
	return items, nil
}

// Create registers a new session with an explicit ID and title.
// Returns ErrSessionExists if the ID is already taken.
func (s *Store) Create(user, id, title string) (ListItem, error) {
	if err := ValidateID(id); err != nil {
		return ListItem{}, err
	}

	meta, err := s.loadMetadata(user)
	if err != nil {
		return ListItem{}, err
	}
	if _, ok := meta[id]; ok {
		return ListItem{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	ts := now()
	meta[id] = Meta{Title: title, CreatedAt: ts, UpdatedAt: ts}
	if err := s.saveMetadata(user, meta); err != nil {
		return ListItem{}, err
	}
	if err := s.saveMessages(user, id, []Message{}); err != nil {
		return ListItem{}, err
	}

	s.logger.Info("session created", "user", user, "session_id", id, "title", title)
	return ListItem{ID: id, Title: title, UpdatedAt: ts}, nil
}

// Ensure creates the session if it does not exist yet, deriving a title
// from the question. Used by the generation path, where a frontend may
// send a fresh session ID without calling Create first.
func (s *Store) Ensure(user, id, question string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	meta, err := s.loadMetadata(user)
	if err != nil {
		return err
	}
	if _, ok := meta[id]; ok {
		return nil
	}

	title := deriveTitle(question, id)
	ts := now()
	meta[id] = Meta{Title: title, CreatedAt: ts, UpdatedAt: ts}
	if err := s.saveMetadata(user, meta); err != nil {
		return err
	}
	if err := s.saveMessages(user, id, []Message{}); err != nil {
		return err
	}

	s.logger.Info("session auto-created", "user", user, "session_id", id, "title", title)
	return nil
}

// deriveTitle builds a session title from the first question: the first
// MaxAutoTitleRunes runes plus an ellipsis, or a generic fallback when the
// question is blank.
func deriveTitle(question, id string) string {
	runes := []rune(question)
	if len(runes) > MaxAutoTitleRunes {
		return strings.TrimSpace(string(runes[:MaxAutoTitleRunes])) + "..."
	}
	if title := strings.TrimSpace(question); title != "" {
		return title
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "對話 " + short
}

// Rename updates a session's title and bumps its updated_at.
func (s *Store) Rename(user, id, title string) (ListItem, error) {
	newTitle := strings.TrimSpace(title)
	if newTitle == "" {
		return ListItem{}, ErrEmptyTitle
	}

	meta, err := s.loadMetadata(user)
	if err != nil {
		return ListItem{}, err
	}
	m, ok := meta[id]
	if !ok {
		return ListItem{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	m.Title = newTitle
	m.UpdatedAt = now()
	meta[id] = m
	if err := s.saveMetadata(user, meta); err != nil {
		return ListItem{}, err
	}

	s.logger.Info("session renamed", "user", user, "session_id", id, "title", newTitle)
	return ListItem{ID: id, Title: newTitle, UpdatedAt: m.UpdatedAt}, nil
}

// Delete removes a session and its message file.
func (s *Store) Delete(user, id string) error {
	meta, err := s.loadMetadata(user)
	if err != nil {
		return err
	}
	if _, ok := meta[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	delete(meta, id)
	if err := s.saveMetadata(user, meta); err != nil {
		return err
	}

	path, err := s.messageFile(user, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		// Metadata already dropped the session; an orphaned message file
		// is harmless, so log and move on.
		s.logger.Error("failed to delete message file", "user", user, "session_id", id, "error", err)
	}

	if len(meta) == 0 {
		s.pruneUserDir(user)
	}

	s.logger.Info("session deleted", "user", user, "session_id", id)
	return nil
}

// pruneUserDir removes the user's chat data directory once the last
// session is gone, but only while no message files linger. Failure is
// logged and ignored since an empty directory is harmless.
func (s *Store) pruneUserDir(user string) {
	dir, err := s.userDir(user)
	if err != nil {
		return
	}
	msgDir := filepath.Join(dir, "chat_messages")
	if entries, err := os.ReadDir(msgDir); err == nil && len(entries) > 0 {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Error("failed to prune user data dir", "user", user, "error", err)
		return
	}
	s.logger.Info("pruned empty user data dir", "user", user)
}

// Messages returns the session's messages in order.
// Returns ErrSessionNotFound if the session is not registered for the user.
func (s *Store) Messages(user, id string) ([]Message, error) {
	meta, err := s.loadMetadata(user)
	if err != nil {
		return nil, err
	}
	if _, ok := meta[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.loadMessages(user, id), nil
}

// History returns the session's messages for prompt assembly, tolerating a
// session that does not exist yet (empty history).
func (s *Store) History(user, id string) []Message {
	return s.loadMessages(user, id)
}

// AppendTurn appends a user question and the assistant answer to the
// session and touches its updated_at.
func (s *Store) AppendTurn(user, id, question, answer string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	msgs := s.loadMessages(user, id)
	msgs = append(msgs,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer},
	)
	if err := s.saveMessages(user, id, msgs); err != nil {
		return err
	}

	meta, err := s.loadMetadata(user)
	if err != nil {
		return err
	}
	if m, ok := meta[id]; ok {
		m.UpdatedAt = now()
		meta[id] = m
		if err := s.saveMetadata(user, meta); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) userDir(user string) (string, error) {
	sanitized, err := SanitizeUser(user)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, sanitized), nil
}

func (s *Store) metadataFile(user string) (string, error) {
	dir, err := s.userDir(user)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chats_metadata.json"), nil
}

func (s *Store) messageFile(user, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	dir, err := s.userDir(user)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chat_messages", id+".json"), nil
}

// loadMetadata reads the user's session index. A missing file means no
// sessions yet; a corrupt file is logged and treated the same, matching
// the store's best-effort contract.
func (s *Store) loadMetadata(user string) (map[string]Meta, error) {
	path, err := s.metadataFile(user)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Meta{}, nil
		}
		return nil, fmt.Errorf("reading session metadata: %w", err)
	}

	var meta map[string]Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.Error("corrupt session metadata, starting fresh", "user", user, "error", err)
		return map[string]Meta{}, nil
	}
	if meta == nil {
		meta = map[string]Meta{}
	}
	return meta, nil
}

func (s *Store) saveMetadata(user string, meta map[string]Meta) error {
	path, err := s.metadataFile(user)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating user directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("writing session metadata: %w", err)
	}
	return nil
}

// loadMessages reads a session's message file. Missing or unreadable files
// yield an empty history rather than an error.
func (s *Store) loadMessages(user, id string) []Message {
	path, err := s.messageFile(user, id)
	if err != nil {
		return []Message{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read session messages", "user", user, "session_id", id, "error", err)
		}
		return []Message{}
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		s.logger.Error("corrupt session messages", "user", user, "session_id", id, "error", err)
		return []Message{}
	}
	return msgs
}

func (s *Store) saveMessages(user, id string, msgs []Message) error {
	path, err := s.messageFile(user, id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating message directory: %w", err)
	}

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session messages: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("writing session messages: %w", err)
	}
	return nil
}
