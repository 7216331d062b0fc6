package session

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv("WPP_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wpp", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("WPP_HOME", tmp)
	if got := Dir("work"); got != filepath.Join(tmp, "sessions", "work") {
		t.Errorf("Dir(work) = %q", got)
	}
	if got := ConfigPath(); got != filepath.Join(tmp, "config.toml") {
		t.Errorf("ConfigPath() = %q", got)
	}
}

func TestSessionFiles(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"socket", SocketPath("test"), filepath.Join("sessions", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join("sessions", "test", "LOCK")},
		{"journal", JournalPath("test"), filepath.Join("sessions", "test", "journal.db")},
		{"log", LogPath("test"), filepath.Join("sessions", "test", "logs", "wppd.log")},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, tt.want) {
			t.Errorf("%s path = %q, want suffix %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv("WPP_HOME", t.TempDir())

	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("List() on empty home = %v", names)
	}

	for _, n := range []string{"work", "main"} {
		if err := EnsureDir(n); err != nil {
			t.Fatal(err)
		}
	}
	info, err := os.Stat(LogDir("work"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("log dir permission = %o, want 0700", perm)
	}
	// Not a valid session name: ignored.
	if err := os.MkdirAll(Dir("Bad Name"), 0700); err != nil {
		t.Fatal(err)
	}

	names, err = List()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"main", "work"}) {
		t.Errorf("List() = %v, want [main work]", names)
	}
}

func TestResolvePaths(t *testing.T) {
	t.Setenv("WPP_HOME", t.TempDir())
	t.Setenv("WPP_SESSION", "")

	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q", got)
	}
	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("Resolve() = %q, want %q", got, DefaultSessionName)
	}
	t.Setenv("WPP_SESSION", "fromenv")
	if got := Resolve(""); got != "fromenv" {
		t.Errorf("Resolve() with env = %q, want fromenv", got)
	}
}
