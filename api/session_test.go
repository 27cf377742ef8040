package api

import (
	"net/http"
	"testing"

	"github.com/kmu-usr/airqa/internal/session"
)

func TestSessionList_EmptyIsJSONArray(t *testing.T) {
	handler, _, _, _ := newTestServer(t)

	w := doJSON(handler, http.MethodGet, "/api/chats", nil, asUser("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want an empty JSON array", got)
	}
}

func TestSessionList_ReturnsItems(t *testing.T) {
	handler, _, sessions, _ := newTestServer(t)
	sessions.items = []session.ListItem{
		{ID: "sess-2", Title: "空污問題", UpdatedAt: "2025-06-11T08:00:00.000000000Z"},
		{ID: "sess-1", Title: "USR 計畫", UpdatedAt: "2025-06-10T08:00:00.000000000Z"},
	}

	w := doJSON(handler, http.MethodGet, "/api/chats", nil, asUser("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	items := decodeBody[[]session.ListItem](t, w)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != "sess-2" {
		t.Errorf("first item = %q, want newest first", items[0].ID)
	}
}

func TestSessionCreate(t *testing.T) {
	handler, _, _, _ := newTestServer(t)

	w := doJSON(handler, http.MethodPost, "/api/chats", CreateChatRequest{
		ID:    "sess-1",
		Title: "新對話",
	}, asUser("alice"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}
	item := decodeBody[session.ListItem](t, w)
	if item.ID != "sess-1" || item.Title != "新對話" {
		t.Errorf("item = %+v", item)
	}
}

func TestSessionCreate_Conflict(t *testing.T) {
	handler, _, sessions, _ := newTestServer(t)
	sessions.createErr = session.ErrSessionExists

	w := doJSON(handler, http.MethodPost, "/api/chats", CreateChatRequest{
		ID: "sess-1",
	}, asUser("alice"))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	resp := decodeBody[ErrorResponse](t, w)
	if want := "聊天 ID sess-1 已存在"; resp.Error != want {
		t.Errorf("error = %q, want %q", resp.Error, want)
	}
}

func TestSessionCreate_InvalidID(t *testing.T) {
	handler, _, sessions, _ := newTestServer(t)
	sessions.createErr = session.ErrInvalidSessionID

	w := doJSON(handler, http.MethodPost, "/api/chats", CreateChatRequest{
		ID: "../escape",
	}, asUser("alice"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSessionMessages(t *testing.T) {
	handler, _, sessions, _ := newTestServer(t)
	sessions.messages["sess-1"] = []session.Message{
		{Role: session.RoleUser, Content: "問題"},
		{Role: session.RoleAssistant, Content: "回答"},
	}

	w := doJSON(handler, http.MethodGet, "/api/chats/sess-1/messages", nil, asUser("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	msgs := decodeBody[[]session.Message](t, w)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].Role != session.RoleAssistant {
		t.Errorf("second message role = %q, want %q", msgs[1].Role, session.RoleAssistant)
	}
}

func TestSessionMessages_NotFound(t *testing.T) {
	handler, _, _, _ := newTestServer(t)

	w := doJSON(handler, http.MethodGet, "/api/chats/missing/messages", nil, asUser("alice"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	resp := decodeBody[ErrorResponse](t, w)
	if want := "聊天 ID missing 未找到"; resp.Error != want {
		t.Errorf("error = %q, want %q", resp.Error, want)
	}
}

func TestSessionRename(t *testing.T) {
	handler, _, _, _ := newTestServer(t)

	w := doJSON(handler, http.MethodPut, "/api/chats/sess-1", RenameChatRequest{
		Title: "改名後",
	}, asUser("alice"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	item := decodeBody[session.ListItem](t, w)
	if item.Title != "改名後" {
		t.Errorf("title = %q, want %q", item.Title, "改名後")
	}
}

func TestSessionRename_EmptyTitle(t *testing.T) {
	handler, _, sessions, _ := newTestServer(t)
	sessions.renameErr = session.ErrEmptyTitle

	w := doJSON(handler, http.MethodPut, "/api/chats/sess-1", RenameChatRequest{}, asUser("alice"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := decodeBody[ErrorResponse](t, w)
	if resp.Error != "標題不能為空" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestSessionRename_NotFound(t *testing.T) {
	handler, _, sessions, _ := newTestServer(t)
	sessions.renameErr = session.ErrSessionNotFound

	w := doJSON(handler, http.MethodPut, "/api/chats/ghost", RenameChatRequest{
		Title: "標題",
	}, asUser("alice"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSessionDelete(t *testing.T) {
	handler, _, sessions, _ := newTestServer(t)

	w := doJSON(handler, http.MethodDelete, "/api/chats/sess-1", nil, asUser("alice"))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(sessions.deleted) != 1 || sessions.deleted[0] != "sess-1" {
		t.Errorf("deleted = %v, want [sess-1]", sessions.deleted)
	}
}

func TestSessionDelete_NotFound(t *testing.T) {
	handler, _, sessions, _ := newTestServer(t)
	sessions.deleteErr = session.ErrSessionNotFound

	w := doJSON(handler, http.MethodDelete, "/api/chats/ghost", nil, asUser("alice"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	resp := decodeBody[ErrorResponse](t, w)
	if want := "聊天 ID ghost 未找到"; resp.Error != want {
		t.Errorf("error = %q, want %q", resp.Error, want)
	}
}
