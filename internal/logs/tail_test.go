package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"glint/internal/logs"
	"glint/internal/testsupport"
)

func TestFileUsesConfiguredLogDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := logs.File(cfg)
	if filepath.Dir(path) != cfg.Paths.LogDir {
		t.Fatalf("expected log in %q, got %q", cfg.Paths.LogDir, path)
	}
	if filepath.Base(path) != "glint.log" {
		t.Fatalf("unexpected log file name %q", filepath.Base(path))
	}
}

func TestTailMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glint.log")
	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glint.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset == 0 {
		t.Fatal("expected offset to advance")
	}
}

func TestTailResumesFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glint.log")
	if err := os.WriteFile(path, []byte("first\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	first, err := logs.Tail(context.Background(), path, logs.Options{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("second\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	second, err := logs.Tail(context.Background(), path, logs.Options{Offset: first.Offset})
	if err != nil {
		t.Fatalf("resume tail: %v", err)
	}
	if len(second.Lines) != 1 || second.Lines[0] != "second" {
		t.Fatalf("unexpected resumed lines: %#v", second.Lines)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glint.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial, err := logs.Tail(ctx, path, logs.Options{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(initial.Lines) != 1 {
		t.Fatalf("expected initial line, got %#v", initial.Lines)
	}

	done := make(chan struct{})
	go func(offset int64) {
		res, err := logs.Tail(ctx, path, logs.Options{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Errorf("unexpected follow lines: %#v", res.Lines)
		}
		close(done)
	}(initial.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}
