package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/wppsync/internal/api"
	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/lock"
	"github.com/matheus3301/wppsync/internal/qrtext"
	"github.com/matheus3301/wppsync/internal/session"
	"github.com/spf13/cobra"
)

func pairCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Show the gateway's pairing QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout := callTimeout
			if wait {
				timeout = 0
			}
			return withClient(cmd, timeout, func(ctx context.Context, c *api.Client) error {
				// Subscribe before reading the current QR so no update is lost.
				var stream *api.EventStream
				if wait {
					var err error
					if stream, err = c.Watch(ctx, bus.NSPairing); err != nil {
						return err
					}
				}
				p, err := c.Pairing(ctx)
				if err != nil {
					return err
				}
				for {
					if jsonFlag {
						outputJSON(p)
					} else if err := printPairing(p); err != nil {
						return err
					}
					if !wait || p.Paired {
						return nil
					}
					evt, err := stream.Recv()
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
					p = &api.Pairing{QR: evt.QR, Paired: evt.Paired}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "keep showing new codes until the gateway is paired")
	return cmd
}

func printPairing(p *api.Pairing) error {
	switch {
	case p.Paired:
		fmt.Println("Gateway is paired.")
	case p.QR == "":
		fmt.Println("Gateway has not asked for pairing yet.")
	default:
		art, err := qrtext.Render(p.QR, "  ")
		if err != nil {
			return err
		}
		fmt.Printf("\n  Scan this QR code with WhatsApp:\n\n%s\n", art)
	}
	return nil
}

func actionsCmd() *cobra.Command {
	var (
		failed bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List journaled outbound actions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				list, err := c.Actions(ctx, failed, limit)
				if err != nil {
					return err
				}
				if jsonFlag {
					outputJSON(list)
					return nil
				}
				if len(list.Actions) == 0 {
					fmt.Println("No actions recorded.")
					return nil
				}
				for _, a := range list.Actions {
					target := a.MessageID
					if target == "" {
						target = fmt.Sprintf("%q", a.Content)
					}
					fmt.Printf("%s  %-6s %-20s %-24s emitted=%-5v %-8s %s\n",
						a.CreatedAt.Local().Format(time.DateTime), a.Action, a.ConversationID, target,
						a.Emitted, a.Durability, a.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "only actions that hit an error")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of actions")
	return cmd
}

type sessionInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			names, err := session.List()
			if err != nil {
				return err
			}
			infos := make([]sessionInfo, 0, len(names))
			for _, name := range names {
				info := sessionInfo{Name: name, Path: session.Dir(name)}
				h, err := lock.ReadHolder(info.Path)
				if err != nil {
					return err
				}
				info.Running, info.PID = h.Held, h.PID
				infos = append(infos, info)
			}
			if jsonFlag {
				outputJSON(infos)
				return nil
			}
			if len(infos) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}
			for _, s := range infos {
				state := "stopped"
				if s.Running {
					state = fmt.Sprintf("running, pid %d", s.PID)
				}
				fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, state)
			}
			return nil
		},
	})
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [namespace]...",
		Short: "Stream engine events (conv. roster. status. outbound. pairing.)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, 0, func(ctx context.Context, c *api.Client) error {
				stream, err := c.Watch(ctx, args...)
				if err != nil {
					return err
				}
				for {
					evt, err := stream.Recv()
					if err != nil {
						if ctx.Err() != nil || errors.Is(err, io.EOF) {
							return nil
						}
						return err
					}
					if jsonFlag {
						outputJSON(evt)
						continue
					}
					fmt.Println(formatEvent(evt))
				}
			})
		},
	}
}

func formatEvent(evt *api.Event) string {
	line := evt.At.Local().Format(time.TimeOnly) + " " + evt.Kind
	add := func(k, v string) {
		if v != "" {
			line += " " + k + "=" + v
		}
	}
	add("conv", evt.Conversation)
	add("msg", evt.Message)
	add("change", evt.Change)
	if evt.Added > 0 {
		add("added", fmt.Sprint(evt.Added))
	}
	if evt.Contacts > 0 {
		add("contacts", fmt.Sprint(evt.Contacts))
	}
	if evt.To != "" {
		add("state", evt.From+"->"+evt.To)
	}
	if evt.Result != nil {
		add("action", evt.Result.Action)
		add("durability", evt.Result.Durability)
	}
	if evt.Kind == bus.PairingUpdated {
		add("paired", fmt.Sprint(evt.Paired))
		if evt.QR != "" {
			add("qr", "yes")
		}
	}
	add("error", evt.Error)
	return line
}
