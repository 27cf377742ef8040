package session

import (
	"errors"
	"regexp"
	"strings"
)

// Sentinel errors for session operations.
// These are part of the Store's public API; check them with errors.Is().
//
// Example:
//
//	msgs, err := store.Messages(user, id)
//	if errors.Is(err, session.ErrSessionNotFound) {
//	    // 404
//	}
var (
	// ErrSessionNotFound indicates the session does not exist for this user.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists indicates a session with this ID already exists.
	ErrSessionExists = errors.New("session already exists")

	// ErrEmptyTitle indicates a rename with a blank title.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrInvalidUser indicates a username that sanitizes to nothing.
	ErrInvalidUser = errors.New("invalid username")

	// ErrInvalidSessionID indicates a session ID unsafe for file storage.
	ErrInvalidSessionID = errors.New("invalid session ID")
)

var (
	userStrip      = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	validSessionID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
)

// SanitizeUser normalizes an external identity to a filesystem-safe
// username: characters outside [a-zA-Z0-9_-] are stripped and the result
// is lowercased. An identity with nothing left returns ErrInvalidUser.
func SanitizeUser(username string) (string, error) {
	sanitized := strings.ToLower(userStrip.ReplaceAllString(username, ""))
	if sanitized == "" {
		return "", ErrInvalidUser
	}
	return sanitized, nil
}

// ValidateID rejects session IDs that could escape the user's message
// directory. IDs are caller-chosen, so they are constrained to a safe
// character set rather than parsed as UUIDs.
func ValidateID(id string) error {
	if !validSessionID.MatchString(id) {
		return ErrInvalidSessionID
	}
	return nil
}
