package runlog

import (
	"strings"
	"testing"
)

func TestAppendAndTail(t *testing.T) {
	log, err := New(t.TempDir(), "shop")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("stage %s started", "business")
	log.Error("stage %s failed: %s", "qa", "boom")

	lines := log.Tail(10)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[0], "business") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "ERROR") || !strings.Contains(lines[1], "boom") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestTailLimitsLines(t *testing.T) {
	log, err := New(t.TempDir(), "shop")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		log.Info("entry %d", i)
	}
	lines := log.Tail(2)
	if len(lines) != 2 || !strings.Contains(lines[1], "entry 4") {
		t.Fatalf("unexpected tail %v", lines)
	}
}
