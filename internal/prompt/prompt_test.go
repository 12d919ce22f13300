package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	custom := "You are a meticulous analyst. Respond with JSON."
	if err := os.WriteFile(filepath.Join(dir, "business.txt"), []byte(custom+"\n"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	provider := NewFileProvider(dir)

	got, err := provider.System("business")
	if err != nil {
		t.Fatalf("System: %v", err)
	}
	if got != custom {
		t.Fatalf("got %q, want file content", got)
	}
}

func TestMissingFileFallsBackToBuiltin(t *testing.T) {
	provider := NewFileProvider(t.TempDir())
	got, err := provider.System("qa")
	if err != nil {
		t.Fatalf("System: %v", err)
	}
	if !strings.Contains(got, "QA engineer") {
		t.Fatalf("unexpected builtin prompt: %q", got)
	}
}

func TestUnknownStageErrors(t *testing.T) {
	provider := NewFileProvider(t.TempDir())
	if _, err := provider.System("marketing"); err == nil {
		t.Fatal("expected error for stage with no prompt")
	}
}

func TestEmptyPromptFileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "audit.txt"), []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	provider := NewFileProvider(dir)
	if _, err := provider.System("audit"); err == nil {
		t.Fatal("expected error for empty prompt file")
	}
}
