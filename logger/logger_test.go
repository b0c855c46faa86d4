package logger

import "testing"

func TestLoggerSafeBeforeInitialize(t *testing.T) {
	// Package init installs a no-op logger; helpers must not panic.
	Infow("message before init", "key", "value")
	Warnw("warning before init")
	Errorw("error before init")
	Debugw("debug before init")
	Cleanup()
}

func TestInitialize(t *testing.T) {
	if err := Initialize(true); err != nil {
		t.Fatalf("Initialize(json) failed: %v", err)
	}
	if !JSONOutput {
		t.Error("JSONOutput flag should be set")
	}

	if err := Initialize(false); err != nil {
		t.Fatalf("Initialize(console) failed: %v", err)
	}
	if JSONOutput {
		t.Error("JSONOutput flag should be cleared")
	}

	child := Named("test")
	if child == nil {
		t.Fatal("Named returned nil logger")
	}
	child.Infow("named logger works", "component", "test")
}
