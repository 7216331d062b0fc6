package session

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/matheus3301/wppsync/internal/config"
)

// DefaultSessionName is used when neither a flag nor the config names one.
const DefaultSessionName = "main"

// ErrInvalidName is wrapped by ValidateName failures.
var ErrInvalidName = errors.New("invalid session name")

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName reports whether name can be used as a session directory.
func ValidateName(name string) error {
	if namePattern.MatchString(name) {
		return nil
	}
	return fmt.Errorf("%w %q: want lowercase letters, digits, '-' or '_', at most 64, not starting with '-' or '_'", ErrInvalidName, name)
}

// Resolve picks the session: the flag, then default_session from the
// config file (which WPP_SESSION overrides), then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg, err := config.LoadOrDefault(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
