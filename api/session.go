package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kmu-usr/airqa/internal/log"
	"github.com/kmu-usr/airqa/internal/session"
)

// SessionStore is the slice of session behavior the HTTP layer needs.
type SessionStore interface {
	List(user string) ([]session.ListItem, error)
	Create(user, id, title string) (session.ListItem, error)
	Messages(user, id string) ([]session.Message, error)
	Rename(user, id, title string) (session.ListItem, error)
	Delete(user, id string) error
}

// SessionHandler handles session management endpoints.
type SessionHandler struct {
	store  SessionStore
	logger log.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(store SessionStore, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux, auth *authenticator) {
	mux.HandleFunc("GET /api/chats", auth.requireUser(h.list))
	mux.HandleFunc("POST /api/chats", auth.requireUser(h.create))
	mux.HandleFunc("GET /api/chats/{id}/messages", auth.requireUser(h.messages))
	mux.HandleFunc("PUT /api/chats/{id}", auth.requireUser(h.rename))
	mux.HandleFunc("DELETE /api/chats/{id}", auth.requireUser(h.delete))
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	items, err := h.store.List(user)
	if err != nil {
		h.logger.Error("failed to list sessions", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions", "")
		return
	}
	if items == nil {
		items = []session.ListItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateChatRequest is the body of POST /api/chats. The client chooses
// the session ID so the frontend can navigate before the server responds.
type CreateChatRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	user := userFrom(r)
	item, err := h.store.Create(user, req.ID, req.Title)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionExists):
			writeError(w, http.StatusConflict, fmt.Sprintf("聊天 ID %s 已存在", req.ID), "")
		case errors.Is(err, session.ErrInvalidSessionID):
			writeError(w, http.StatusBadRequest, "invalid session ID", "")
		default:
			h.logger.Error("failed to create session", "user", user, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create session", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *SessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	id := r.PathValue("id")

	msgs, err := h.store.Messages(user, id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrInvalidSessionID) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("聊天 ID %s 未找到", id), "")
			return
		}
		h.logger.Error("failed to load messages", "user", user, "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages", "")
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// RenameChatRequest is the body of PUT /api/chats/{id}.
type RenameChatRequest struct {
	Title string `json:"title"`
}

func (h *SessionHandler) rename(w http.ResponseWriter, r *http.Request) {
	var req RenameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	user := userFrom(r)
	id := r.PathValue("id")

	item, err := h.store.Rename(user, id, req.Title)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrInvalidSessionID):
			writeError(w, http.StatusNotFound, fmt.Sprintf("聊天 ID %s 未找到", id), "")
		case errors.Is(err, session.ErrEmptyTitle):
			writeError(w, http.StatusBadRequest, "標題不能為空", "")
		default:
			h.logger.Error("failed to rename session", "user", user, "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to rename session", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	id := r.PathValue("id")

	if err := h.store.Delete(user, id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrInvalidSessionID) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("聊天 ID %s 未找到", id), "")
			return
		}
		h.logger.Error("failed to delete session", "user", user, "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
