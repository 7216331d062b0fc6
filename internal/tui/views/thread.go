package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wppsync/internal/api"
	"github.com/matheus3301/wppsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// Thread shows one conversation with a composer below it.
type Thread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	onSend   func(text string)
}

// NewThread creates the conversation view.
func NewThread(theme *ui.Theme) *Thread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, Esc to leave) ")
	composer.SetTitleColor(theme.TitleColor)

	t := &Thread{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(messages, 0, 1, true).
			AddItem(composer, 3, 0, false),
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || t.onSend == nil {
			return
		}
		if text := strings.TrimSpace(composer.GetText()); text != "" {
			t.onSend(text)
			composer.SetText("")
		}
	})
	return t
}

// SetOnSend sets the callback for submitted composer text.
func (t *Thread) SetOnSend(fn func(text string)) {
	t.onSend = fn
}

// Update renders conv, oldest message first.
func (t *Thread) Update(conv *api.Conversation) {
	t.messages.Clear()
	if conv == nil {
		t.messages.SetTitle(" Conversation ")
		return
	}
	peer := sanitizeForTerminal(conv.Contact.Label())
	t.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(peer)))

	switch {
	case conv.LoadError != "":
		_, _ = fmt.Fprintf(t.messages, "[%s]history unavailable: %s[-]\n\n",
			ui.ColorName(t.theme.FlashWarnColor), tview.Escape(conv.LoadError))
	case !conv.Loaded:
		_, _ = fmt.Fprintf(t.messages, "[::d]loading history...[::-]\n\n")
	}

	now := time.Now()
	for _, m := range conv.Messages {
		_, _ = fmt.Fprint(t.messages, t.line(m, peer, now))
	}
	t.messages.ScrollToEnd()
}

func (t *Thread) line(m api.Message, peer string, now time.Time) string {
	who, color := peer, t.theme.PeerColor
	if m.Local {
		who, color = "You", t.theme.LocalColor
	}
	mark := ""
	if m.Local {
		mark = statusMark(m)
		if m.Provisional {
			mark = fmt.Sprintf("[%s]%s[-]", ui.ColorName(t.theme.PendingColor), mark)
		}
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s %s[::-] %s\n%s\n\n",
		ui.ColorName(color), tview.Escape(who),
		formatTimestamp(m.CreatedAt, now), tview.Escape(m.ID), mark,
		tview.Escape(sanitizeForTerminal(body(m))))
}

// statusMark renders delivery state like the usual check marks.
func statusMark(m api.Message) string {
	switch m.Status {
	case "PENDING":
		return "…"
	case "DELIVERED":
		return "✓"
	case "SEEN":
		return "✓✓"
	}
	return ""
}

func body(m api.Message) string {
	switch {
	case m.Audio:
		return "[audio] " + m.Media
	case m.Media != "":
		return "[media] " + m.Media
	}
	return m.Content
}

// Messages returns the message pane, for focus.
func (t *Thread) Messages() *tview.TextView {
	return t.messages
}

// Composer returns the input field, for focus.
func (t *Thread) Composer() *tview.InputField {
	return t.composer
}
