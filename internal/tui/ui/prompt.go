package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Prompt is the ':' command line.
type Prompt struct {
	*tview.InputField
	onSubmit func(text string)
	onDone   func()
}

// NewPrompt creates a command prompt.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField().SetLabel(":")
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input}
	input.SetDoneFunc(func(key tcell.Key) {
		text := p.GetText()
		p.SetText("")
		if key == tcell.KeyEnter && text != "" && p.onSubmit != nil {
			p.onSubmit(text)
		}
		if p.onDone != nil {
			p.onDone()
		}
	})
	return p
}

// SetOnSubmit sets the callback for an entered command.
func (p *Prompt) SetOnSubmit(fn func(text string)) {
	p.onSubmit = fn
}

// SetOnDone sets the callback run after Enter or Escape.
func (p *Prompt) SetOnDone(fn func()) {
	p.onDone = fn
}
