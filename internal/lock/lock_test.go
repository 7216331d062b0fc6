package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireWritesRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions", "main")

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	h := readRecord(filepath.Join(dir, "LOCK"))
	if h.PID != os.Getpid() {
		t.Errorf("record pid = %d, want %d", h.PID, os.Getpid())
	}
	if time.Since(h.Since) > time.Minute {
		t.Errorf("record since = %v, want recent", h.Since)
	}
}

func TestSecondAcquireReportsHolder(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(dir)
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire() error = %v, want ErrHeld", err)
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("error %T is not a HeldError", err)
	}
	if held.Holder.PID != os.Getpid() || !held.Holder.Held {
		t.Errorf("holder = %+v", held.Holder)
	}
}

func TestReleaseRemovesFile(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "LOCK")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file still present: %v", err)
	}

	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReadHolder(t *testing.T) {
	dir := t.TempDir()

	h, err := ReadHolder(dir)
	if err != nil {
		t.Fatal(err)
	}
	if h.Held {
		t.Error("missing lock reported as held")
	}

	l, err := Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	h, err = ReadHolder(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Held || h.PID != os.Getpid() {
		t.Errorf("holder = %+v, want held by %d", h, os.Getpid())
	}

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	h, err = ReadHolder(dir)
	if err != nil {
		t.Fatal(err)
	}
	if h.Held {
		t.Error("released lock reported as held")
	}
}

func TestReadHolderIgnoresStaleFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "LOCK"), []byte("pid=1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHolder(dir)
	if err != nil {
		t.Fatal(err)
	}
	if h.Held {
		t.Errorf("stale file reported as held: %+v", h)
	}
}
