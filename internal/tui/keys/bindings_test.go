package keys

import (
	"reflect"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true})
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: ':', Description: ":cmd", Visible: true})
	r.AddGlobal(&Action{Key: tcell.KeyCtrlL, Description: "hidden"})
	r.AddPage("thread", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "r:resync", Visible: true})
	r.AddPage("thread", &Action{Key: tcell.KeyRune, Rune: 'i', Description: "i:compose", Visible: true})

	if got, want := r.Hints("thread"), []string{"r:resync", "i:compose", "q:quit", ":cmd"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Hints(thread) = %v, want %v", got, want)
	}
	if got, want := r.Hints("roster"), []string{"q:quit", ":cmd"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Hints(roster) = %v, want %v", got, want)
	}
	// Repeated calls must not leak page bindings into the global set.
	_ = r.Hints("thread")
	if got := r.Hints("roster"); len(got) != 2 {
		t.Errorf("Hints(roster) after reuse = %v", got)
	}
}
