package session

import "time"

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation message as persisted on disk.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Meta holds per-session metadata stored in chats_metadata.json.
type Meta struct {
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListItem is one entry of a user's session listing, newest first.
type ListItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

// MaxAutoTitleRunes bounds the title derived from a question when a session
// is created implicitly during generation.
const MaxAutoTitleRunes = 30

// timestampLayout is RFC 3339 with fixed-width nanoseconds so timestamps
// sort lexically, which List relies on for recency ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// now returns the current time formatted for session timestamps.
func now() string {
	return time.Now().UTC().Format(timestampLayout)
}
