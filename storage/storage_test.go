package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maastricht-university/audio-analyzer/errs"
	"github.com/maastricht-university/audio-analyzer/logging"
)

func TestSaveWritesUniqueTokens(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a, err := s.Save(strings.NewReader("first"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := s.Save(strings.NewReader("second"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if a == b || len(a) != 32 {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
	path, err := s.Path(a)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "first" {
		t.Fatalf("unexpected content %q, err=%v", data, err)
	}
}

func TestValidateNameRejectsTraversal(t *testing.T) {
	for _, name := range []string{"", "..", "../etc/passwd", "a/b", `a\b`, "x..y"} {
		if err := ValidateName(name); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("ValidateName(%q): expected invalid input, got %v", name, err)
		}
	}
	if err := ValidateName("0123abcd.mp3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	if err := s.Delete("missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)
	old := time.Now().Add(-3 * time.Hour)
	for _, name := range []string{"tok1", "tok1.wav", "tok2", "tok2.wav"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if strings.HasPrefix(name, "tok1") {
			if err := os.Chtimes(path, old, old); err != nil {
				t.Fatal(err)
			}
		}
	}

	job := NewSweepJob(s, time.Hour, 0, logging.Discard())
	removed, err := job.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the stale derived file removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "tok1")); err != nil {
		t.Fatalf("stored media must survive without retention: %v", err)
	}

	job = NewSweepJob(s, time.Hour, 2*time.Hour, logging.Discard())
	if removed, _ = job.Sweep(); removed != 1 {
		t.Fatalf("expected stale upload removed with retention, got %d", removed)
	}
	for _, name := range []string{"tok2", "tok2.wav"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("fresh file %s removed: %v", name, err)
		}
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	if _, err := NewScheduler("not a spec", NewSweepJob(s, time.Hour, 0, logging.Discard())); err == nil {
		t.Fatal("expected cron parse error")
	}
}
