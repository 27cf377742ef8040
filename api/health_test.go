package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kmu-usr/airqa/internal/log"
)

func TestHealth_Liveness(t *testing.T) {
	h := NewHealthHandler(nil, log.NewNop())

	w := httptest.NewRecorder()
	h.liveness(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "ok" {
		t.Errorf("body = %q, want %q", got, "ok")
	}
}

func TestHealth_ReadinessWithoutPool(t *testing.T) {
	h := NewHealthHandler(nil, log.NewNop())

	w := httptest.NewRecorder()
	h.readiness(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
