// Command wppd runs the sync daemon for one session.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/wppsync/internal/daemon"
	"github.com/matheus3301/wppsync/internal/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	name := session.Resolve(*sessionFlag)
	if err := session.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fx.New(
		daemon.Module(daemon.Params{SessionName: name}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: logger.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
		fx.StopTimeout(15*time.Second),
	).Run()
}
