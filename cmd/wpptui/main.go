package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/wppsync/internal/api"
	"github.com/matheus3301/wppsync/internal/session"
	"github.com/matheus3301/wppsync/internal/tui"
)

const (
	probeTimeout = 2 * time.Second
	startTimeout = 10 * time.Second
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	noStart := flag.Bool("no-start", false, "fail instead of starting a daemon")
	flag.Parse()

	if err := run(*sessionFlag, !*noStart); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(flagSession string, autoStart bool) error {
	sessionName := session.Resolve(flagSession)
	if err := session.ValidateName(sessionName); err != nil {
		return err
	}
	socketPath := session.SocketPath(sessionName)

	c, err := connect(socketPath)
	if err != nil {
		if !autoStart {
			return fmt.Errorf("daemon not running for session %q: %w", sessionName, err)
		}
		fmt.Fprintf(os.Stderr, "daemon not running for session %q, starting...\n", sessionName)
		if err := startDaemon(sessionName); err != nil {
			return fmt.Errorf("start daemon: %w", err)
		}
		if c, err = waitForDaemon(socketPath, startTimeout); err != nil {
			return err
		}
	}
	defer func() { _ = c.Close() }()

	return tui.NewApp(c, sessionName).Run()
}

// connect dials the socket and checks the daemon answers a status call.
func connect(socketPath string) (*api.Client, error) {
	if _, err := os.Stat(socketPath); err != nil {
		return nil, err
	}
	c, err := api.Dial(socketPath)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if _, err := c.Status(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// startDaemon runs wppd from next to this executable, or from PATH.
func startDaemon(sessionName string) error {
	wppd := "wppd"
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "wppd")
		if _, err := os.Stat(sibling); err == nil {
			wppd = sibling
		}
	}
	cmd := exec.Command(wppd, "-session", sessionName)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func waitForDaemon(socketPath string, timeout time.Duration) (*api.Client, error) {
	deadline := time.Now().Add(timeout)
	err := errors.New("no answer")
	for time.Now().Before(deadline) {
		var c *api.Client
		if c, err = connect(socketPath); err == nil {
			return c, nil
		}
		time.Sleep(300 * time.Millisecond)
	}
	return nil, fmt.Errorf("daemon did not become ready: %w", err)
}
