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

// Roster is the contact table, most recent activity first.
type Roster struct {
	*tview.Table
	theme    *ui.Theme
	contacts []api.Contact
	visible  []api.Contact
	filter   string
	hasMore  bool
}

// NewRoster creates the roster table.
func NewRoster(theme *ui.Theme) *Roster {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	return &Roster{Table: table, theme: theme}
}

// Update replaces the roster, keeping the selected contact selected.
func (r *Roster) Update(roster *api.Roster) {
	if roster == nil {
		return
	}
	selected := r.Selected()
	r.contacts = roster.Contacts
	r.hasMore = roster.HasMore
	r.render()
	r.selectID(selected)
}

// SetFilter narrows the table to contacts whose name or number contains
// filter, ignoring case.
func (r *Roster) SetFilter(filter string) {
	r.filter = filter
	r.render()
}

// Selected returns the id of the selected contact.
func (r *Roster) Selected() string {
	row, _ := r.GetSelection()
	if row < 1 || row > len(r.visible) {
		return ""
	}
	return r.visible[row-1].ID
}

func (r *Roster) selectID(id string) {
	for i, c := range r.visible {
		if c.ID == id {
			r.Select(i+1, 0)
			return
		}
	}
	if len(r.visible) > 0 {
		r.Select(1, 0)
	}
}

func (r *Roster) render() {
	r.Clear()
	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 2},
		{" NUMBER", 1},
		{" LAST", 0},
	}
	for col, h := range headers {
		r.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(r.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	r.visible = filterContacts(r.contacts, r.filter)
	for i, c := range r.visible {
		row := i + 1
		last := ""
		if c.LastMessageAt != nil {
			last = formatTimestamp(*c.LastMessageAt, time.Now())
		}
		r.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(c.Label()))).SetExpansion(2).SetTextColor(r.theme.FgColor))
		r.SetCell(row, 1, tview.NewTableCell(" "+c.DisplayNumber).SetExpansion(1).SetTextColor(r.theme.DimColor))
		r.SetCell(row, 2, tview.NewTableCell(last+" ").SetAlign(tview.AlignRight).SetTextColor(r.theme.FgColor))
	}

	title := fmt.Sprintf(" Contacts (%d) ", len(r.contacts))
	if r.filter != "" {
		title = fmt.Sprintf(" Contacts (%d/%d) filter: %s ", len(r.visible), len(r.contacts), r.filter)
	}
	if r.hasMore {
		title += "[::d]m:more[::-] "
	}
	r.SetTitle(title)
}

func filterContacts(contacts []api.Contact, filter string) []api.Contact {
	if filter == "" {
		return contacts
	}
	filter = strings.ToLower(filter)
	var out []api.Contact
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.Label()), filter) ||
			strings.Contains(c.Number, filter) {
			out = append(out, c)
		}
	}
	return out
}

// formatTimestamp shows the time for today and the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("02/01")
}
