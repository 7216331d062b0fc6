package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/wppsync/internal/api"
	"github.com/matheus3301/wppsync/internal/session"
	"github.com/spf13/cobra"
)

var (
	sessionFlag string
	jsonFlag    bool
)

func main() {
	root := &cobra.Command{
		Use:           "wppctl",
		Short:         "Control a wppsync session daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")

	root.AddCommand(
		statusCmd(),
		contactsCmd(),
		openCmd(),
		messagesCmd(),
		sendCmd(),
		editCmd(),
		deleteCmd(),
		resyncCmd(),
		pairCmd(),
		actionsCmd(),
		sessionsCmd(),
		watchCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func resolveSession() (string, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// withClient dials the session daemon and runs fn with a bounded context.
// timeout <= 0 means no deadline.
func withClient(cmd *cobra.Command, timeout time.Duration, fn func(ctx context.Context, c *api.Client) error) error {
	name, err := resolveSession()
	if err != nil {
		return err
	}
	c, err := api.Dial(session.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, c)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
