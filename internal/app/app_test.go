package app

import (
	"context"
	"testing"

	"github.com/kmu-usr/airqa/internal/config"
	"github.com/kmu-usr/airqa/internal/log"
)

func TestSetup_NilConfig(t *testing.T) {
	_, err := Setup(context.Background(), nil, log.NewNop())
	if err == nil {
		t.Fatal("Setup(nil config) returned no error")
	}
}

func TestClose_PartialApp(t *testing.T) {
	// Error-path cleanup calls Close on a half-built App.
	a := &App{}
	a.Close()
	a.Close()
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	cfg := &config.Config{}

	shutdown := setupTracing(context.Background(), cfg, log.NewNop())
	if shutdown == nil {
		t.Fatal("setupTracing returned a nil shutdown func")
	}
	shutdown()
}
