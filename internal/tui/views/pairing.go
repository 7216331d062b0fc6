package views

import (
	"fmt"

	"github.com/matheus3301/wppsync/internal/api"
	"github.com/matheus3301/wppsync/internal/qrtext"
	"github.com/rivo/tview"
)

// Pairing shows the gateway's pairing QR code.
type Pairing struct {
	*tview.TextView
	shown string
}

// NewPairing creates the pairing page.
func NewPairing() *Pairing {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true).SetTitle(" Pairing Required ")
	return &Pairing{TextView: tv}
}

// Update renders p, redrawing the code only when it changed.
func (v *Pairing) Update(p *api.Pairing) {
	switch {
	case p == nil:
		return
	case p.Paired:
		v.shown = ""
		v.show("Gateway paired. Loading contacts...")
	case p.QR == "":
		v.shown = ""
		v.show("Waiting for the gateway to provide a QR code...")
	case p.QR != v.shown:
		v.shown = p.QR
		art, err := qrtext.Render(p.QR, "  ")
		if err != nil {
			v.show("QR generation failed: " + err.Error())
			return
		}
		v.Clear()
		_, _ = fmt.Fprintf(v, "\n  Scan this QR code with WhatsApp:\n\n%s\n  [::d]Waiting for the gateway...", art)
	}
}

func (v *Pairing) show(msg string) {
	v.Clear()
	_, _ = fmt.Fprintf(v, "\n\n%s", tview.Escape(msg))
}
