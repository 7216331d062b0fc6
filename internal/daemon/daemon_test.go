package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wppsync/internal/api"
	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/config"
	"github.com/matheus3301/wppsync/internal/gateway"
	"github.com/matheus3301/wppsync/internal/gateway/gatewaytest"
	"github.com/matheus3301/wppsync/internal/lock"
	"github.com/matheus3301/wppsync/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// shortDir returns a /tmp dir to stay under the unix socket path limit.
func shortDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func testConfig(gw *gatewaytest.Server) *config.Config {
	cfg := config.Default()
	opts := gw.Options()
	cfg.Gateway.URL = opts.BaseURL
	cfg.Gateway.Token = opts.Token
	cfg.Gateway.RequestTimeout = config.Duration{Duration: opts.RequestTimeout}
	cfg.Gateway.ReconnectBaseDelay = config.Duration{Duration: opts.ReconnectBaseDelay}
	cfg.Gateway.ReconnectMaxDelay = config.Duration{Duration: opts.ReconnectMaxDelay}
	cfg.Sync.DurabilityTimeout = config.Duration{Duration: time.Second}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonEndToEnd(t *testing.T) {
	t.Setenv("WPP_HOME", shortDir(t, "wpp-home-*"))
	socketPath := filepath.Join(shortDir(t, "wpp-sock-*"), "d.sock")

	gw := gatewaytest.New(gatewaytest.WithToken("secret"), gatewaytest.WithEcho())
	defer gw.Close()
	gw.SetContacts(
		gateway.ContactPayload{ID: "c1", Name: "Ana", Number: "5585911111111"},
		gateway.ContactPayload{ID: "c2", Name: "Bruno", Number: "5585922222222"},
	)
	gw.SetHistory("c1", gateway.MessagePayload{
		ID: "h1", SenderID: "5585911111111", To: "me", Content: "old news",
		CreatedAt: time.Now().Add(-time.Hour),
	})

	app := fx.New(
		Module(Params{
			SessionName: "e2e",
			SocketPath:  socketPath,
			Config:      testConfig(gw),
			Logger:      zap.NewNop(),
		}),
		fx.NopLogger,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			_ = app.Stop(context.Background())
		}
	}()

	c, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	waitFor(t, "roster seed", func() bool {
		r, err := c.Contacts(ctx)
		return err == nil && len(r.Contacts) == 2
	})
	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Session != "e2e" || !st.Connected {
		t.Errorf("status = %+v, want connected e2e session", st)
	}

	conv, err := c.Open(ctx, "c1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].ID != "h1" {
		t.Fatalf("messages after open = %+v, want backfilled h1", conv.Messages)
	}

	msg, err := c.Send(ctx, "c1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !msg.Provisional {
		t.Errorf("sent message %q should be provisional", msg.ID)
	}
	waitFor(t, "echo promotion", func() bool {
		conv, err := c.Messages(ctx, "c1")
		if err != nil || len(conv.Messages) != 2 {
			return false
		}
		last := conv.Messages[1]
		return last.ID == "srv1" && last.Content == "hello"
	})

	if _, err := c.Edit(ctx, "c1", "srv1", "hello!"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	waitFor(t, "journal rows", func() bool {
		list, err := c.Actions(ctx, false, 0)
		if err != nil || len(list.Actions) != 2 {
			return false
		}
		return list.Actions[0].Action == "edit" && list.Actions[0].Durability == "ok"
	})
	if got := gw.Updates()["srv1"]; got != "hello!" {
		t.Errorf("gateway update for srv1 = %q, want hello!", got)
	}

	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("app.Stop() error = %v", err)
	}
	stopped = true

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after stop: %v", err)
	}
	h, err := lock.ReadHolder(session.Dir("e2e"))
	if err != nil {
		t.Fatal(err)
	}
	if h.Held {
		t.Error("session lock still held after stop")
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	t.Setenv("WPP_HOME", shortDir(t, "wpp-home-*"))
	if err := session.EnsureDir("busy"); err != nil {
		t.Fatal(err)
	}
	held, err := lock.Acquire(session.Dir("busy"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()

	gw := gatewaytest.New()
	defer gw.Close()

	app := fx.New(
		Module(Params{
			SessionName: "busy",
			SocketPath:  filepath.Join(shortDir(t, "wpp-sock-*"), "d.sock"),
			Config:      testConfig(gw),
			Logger:      zap.NewNop(),
		}),
		fx.NopLogger,
	)
	if err := app.Err(); err == nil {
		t.Fatal("expected fx graph error while the session lock is held")
	}
}

// TestNewServerUsesParams checks the socket override is honored, so tests
// never touch ~/.wpp.
func TestNewServerUsesParams(t *testing.T) {
	socketPath := filepath.Join(shortDir(t, "wpp-fx-*"), "d.sock")

	p := Params{SessionName: "fxtest", SocketPath: socketPath}
	svc := api.NewService("fxtest", nil, nil, bus.New(), zap.NewNop())
	srv, err := NewServer(p, zap.NewNop(), svc)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket not removed: %v", err)
	}
}

func TestLogCallLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	start := time.Now()

	logCall(logger, "/wppsync.v1.Engine/Open", start, nil)
	logCall(logger, "/wppsync.v1.Engine/Open", start, status.Error(codes.NotFound, "unknown contact"))
	logCall(logger, "/wppsync.v1.Engine/Send", start, status.Error(codes.Internal, "boom"))

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []zapcore.Level{zap.DebugLevel, zap.DebugLevel, zap.WarnLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Errorf("entry %d level = %v, want %v", i, e.Level, want[i])
		}
	}
}
