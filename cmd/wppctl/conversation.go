package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wppsync/internal/api"
	"github.com/spf13/cobra"
)

const callTimeout = 30 * time.Second

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					outputJSON(st)
					return nil
				}
				fmt.Printf("Session:       %s\n", st.Session)
				fmt.Printf("State:         %s (since %s)\n", st.State, st.Since.Local().Format(time.TimeOnly))
				fmt.Printf("Gateway:       %s\n", yesNo(st.Connected, "connected", "disconnected"))
				fmt.Printf("Paired:        %s\n", yesNo(st.Paired, "yes", "no"))
				fmt.Printf("Contacts:      %d\n", st.Contacts)
				fmt.Printf("Conversations: %d open\n", st.OpenConversations)
				if st.DroppedEvents > 0 {
					fmt.Printf("Dropped:       %d events\n", st.DroppedEvents)
				}
				fmt.Printf("Uptime:        %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
				return nil
			})
		},
	}
}

func contactsCmd() *cobra.Command {
	var more bool
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List contacts, most recent activity first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				load := c.Contacts
				if more {
					load = c.LoadMoreContacts
				}
				r, err := load(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					outputJSON(r)
					return nil
				}
				for _, ct := range r.Contacts {
					last := ""
					if ct.LastMessageAt != nil {
						last = ct.LastMessageAt.Local().Format(time.DateTime)
					}
					fmt.Printf("%-24s %-28s %-20s %s\n", ct.ID, ct.Label(), ct.DisplayNumber, last)
				}
				if r.HasMore {
					fmt.Printf("(page %d, more available: wppctl contacts --more)\n", r.Page)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&more, "more", false, "fetch the next roster page first")
	return cmd
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <contact>",
		Short: "Open a conversation and load its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				conv, err := c.Open(ctx, args[0])
				if err != nil {
					return err
				}
				printConversation(conv)
				return nil
			})
		},
	}
}

func messagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <contact>",
		Short: "Show an open conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				conv, err := c.Messages(ctx, args[0])
				if err != nil {
					return err
				}
				printConversation(conv)
				return nil
			})
		},
	}
}

func resyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync <contact>",
		Short: "Merge a conversation's history again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				conv, err := c.Resync(ctx, args[0])
				if err != nil {
					return err
				}
				printConversation(conv)
				return nil
			})
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <contact> <text>...",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				msg, err := c.Send(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				if jsonFlag {
					outputJSON(msg)
					return nil
				}
				fmt.Printf("queued %s (%s)\n", msg.ID, msg.Status)
				return nil
			})
		},
	}
}

func editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <contact> <id> <text>...",
		Short: "Edit a sent message",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				res, err := c.Edit(ctx, args[0], args[1], strings.Join(args[2:], " "))
				if err != nil {
					return err
				}
				printResult(res)
				return nil
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <contact> <id>",
		Short: "Delete a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, callTimeout, func(ctx context.Context, c *api.Client) error {
				res, err := c.Delete(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				printResult(res)
				return nil
			})
		},
	}
}

func printConversation(conv *api.Conversation) {
	if jsonFlag {
		outputJSON(conv)
		return
	}
	fmt.Printf("== %s ==\n", conv.Contact.Label())
	if conv.LoadError != "" {
		fmt.Printf("(history unavailable: %s)\n", conv.LoadError)
	}
	for _, m := range conv.Messages {
		fmt.Println(formatMessage(m, conv.Contact.Label()))
	}
}

func formatMessage(m api.Message, peer string) string {
	who := peer
	if m.Local {
		who = "you"
	}
	body := m.Content
	switch {
	case m.Audio:
		body = "[audio] " + m.Media
	case m.Media != "":
		body = "[media] " + m.Media
	}
	mark := ""
	if m.Local {
		mark = " (" + strings.ToLower(m.Status) + ")"
	}
	return fmt.Sprintf("%s  %-12s %s%s  [%s]", m.CreatedAt.Local().Format("02/01 15:04"), who, body, mark, m.ID)
}

func printResult(res *api.ActionResult) {
	if jsonFlag {
		outputJSON(res)
		return
	}
	state := "not sent: gateway disconnected"
	switch {
	case res.Emitted:
		state = "sent"
	case res.Durability == "skipped":
		state = "applied locally only"
	}
	fmt.Printf("%s %s: %s, durability %s\n", res.Action, res.MessageID, state, res.Durability)
	if res.Error != "" {
		fmt.Printf("error: %s\n", res.Error)
	}
}

func yesNo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
