package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/kmu-usr/airqa/internal/log"
	"github.com/kmu-usr/airqa/internal/session"
)

// Provisioner creates an identity's storage directories. Each store that
// keeps per-user files implements it.
type Provisioner interface {
	Provision(user string) error
}

type contextKey string

const userContextKey contextKey = "user"

// userFrom returns the authenticated identity set by the auth middleware.
func userFrom(r *http.Request) string {
	user, _ := r.Context().Value(userContextKey).(string)
	return user
}

// authenticator validates identities and provisions their directories.
type authenticator struct {
	apiKeys      map[string]string
	provisioners []Provisioner
	logger       log.Logger
}

func newAuthenticator(apiKeys map[string]string, provisioners []Provisioner, logger log.Logger) *authenticator {
	return &authenticator{apiKeys: apiKeys, provisioners: provisioners, logger: logger}
}

// requireUser authenticates frontend requests via the X-Username header.
// The name is sanitized to a filesystem-safe identity before use.
func (a *authenticator) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Username")
		if raw == "" {
			a.logger.Warn("request without X-Username header", "path", r.URL.Path)
			writeError(w, http.StatusBadRequest, "請求標頭中缺少 X-Username", "")
			return
		}

		user, err := session.SanitizeUser(raw)
		if errors.Is(err, session.ErrInvalidUser) {
			a.logger.Warn("username invalid after sanitization", "path", r.URL.Path)
			writeError(w, http.StatusBadRequest, "提供的用戶名無效", "")
			return
		}

		if !a.provision(w, user) {
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// requireAPIKey authenticates public API requests via the X-API-Key
// header. Only a key prefix ever reaches the logs.
func (a *authenticator) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, http.StatusForbidden, "Not authenticated: X-API-Key header missing.", "")
			return
		}

		identity, ok := a.apiKeys[key]
		if !ok {
			a.logger.Warn("invalid API key", "key_prefix", keyPrefix(key))
			writeError(w, http.StatusForbidden, "Could not validate credentials: Invalid API Key.", "")
			return
		}
		a.logger.Info("API key validated", "identity", identity)

		if !a.provision(w, identity) {
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, identity)))
	}
}

// provision runs every registered provisioner for the identity. A failure
// means the handler would hit missing directories, so the request stops.
func (a *authenticator) provision(w http.ResponseWriter, user string) bool {
	for _, p := range a.provisioners {
		if err := p.Provision(user); err != nil {
			a.logger.Error("failed to provision user directories", "user", user, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error", "")
			return false
		}
	}
	return true
}

func keyPrefix(key string) string {
	if len(key) <= 10 {
		return key
	}
	return key[:10] + "..."
}
