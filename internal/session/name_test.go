package session

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	valid := []string{"main", "work123", "my-session", "my_session", "a", "0", strings.Repeat("a", 64)}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "Main", "my session", "my.session", "-lead", "_lead", strings.Repeat("a", 65), "my@session", "my/session", ".."}
	for _, name := range invalid {
		err := ValidateName(name)
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("WPP_HOME", t.TempDir())
	t.Setenv("WPP_SESSION", "")

	if got := Resolve("flagged"); got != "flagged" {
		t.Errorf("Resolve(flag) = %q, want flagged", got)
	}
	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultSessionName)
	}

	t.Setenv("WPP_SESSION", "work")
	if got := Resolve(""); got != "work" {
		t.Errorf("Resolve() with WPP_SESSION = %q, want work", got)
	}
}
