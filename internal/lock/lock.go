// Package lock keeps one daemon per session with an flock on the session
// directory's LOCK file.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrHeld is wrapped by HeldError.
var ErrHeld = errors.New("session lock held")

// HeldError is returned by Acquire when another daemon owns the session.
type HeldError struct {
	Holder Holder
	Path   string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("%v by PID %d (%s)", ErrHeld, e.Holder.PID, e.Path)
}

func (e *HeldError) Unwrap() error { return ErrHeld }

// Holder is what a lock file says about its owner.
type Holder struct {
	PID   int
	Since time.Time
	Held  bool
}

// Lock is an acquired session lock.
type Lock struct {
	file *os.File
	path string
}

func lockPath(sessionDir string) string {
	return filepath.Join(sessionDir, "LOCK")
}

// Acquire takes the exclusive lock of sessionDir, creating the directory
// if needed.
func Acquire(sessionDir string) (*Lock, error) {
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	path := lockPath(sessionDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		h := readRecord(path)
		h.Held = true
		return nil, &HeldError{Holder: h, Path: path}
	}
	if err := writeRecord(f, os.Getpid(), time.Now()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the file. It is safe on a nil or
// already released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadHolder reports who holds the lock of sessionDir, without taking it.
func ReadHolder(sessionDir string) (Holder, error) {
	path := lockPath(sessionDir)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Holder{}, nil
	}
	if err != nil {
		return Holder{}, fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err == nil {
		// Stale file left by a crashed daemon.
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return Holder{}, nil
	}
	h := readRecord(path)
	h.Held = true
	return h, nil
}

func writeRecord(f *os.File, pid int, since time.Time) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(fmt.Sprintf("pid=%d\nsince=%s\n", pid, since.UTC().Format(time.RFC3339))), 0)
	return err
}

// readRecord parses a lock file. Missing or garbled fields stay zero.
func readRecord(path string) Holder {
	var h Holder
	data, err := os.ReadFile(path)
	if err != nil {
		return h
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "since":
			h.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return h
}
