package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wppsync/internal/api"
	"github.com/rivo/tview"
)

// StatusBar shows the session, daemon state and key hints.
type StatusBar struct {
	*tview.TextView
	session string
	status  *api.Status
	hints   []string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(session string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	sb := &StatusBar{TextView: tv, session: session}
	sb.render()
	return sb
}

func (sb *StatusBar) SetStatus(st *api.Status) {
	sb.status = st
	sb.render()
}

func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, statusLine(sb.session, sb.status, sb.hints, time.Now()))
}

func statusLine(session string, st *api.Status, hints []string, now time.Time) string {
	state := "[gray]connecting to daemon[-]"
	if st != nil {
		color := "green"
		switch {
		case !st.Connected:
			color = "red"
		case st.State != "READY":
			color = "yellow"
		}
		state = fmt.Sprintf("[%s]%s[-] %d contacts", color, st.State, st.Contacts)
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", tview.Escape(session), state, now.Format("15:04"))
	if len(hints) > 0 {
		line += " | [::d]" + tview.Escape(strings.Join(hints, "  ")) + "[::-]"
	}
	return line
}
