package qrtext

import (
	"strings"
	"testing"
)

func TestBlocks(t *testing.T) {
	bitmap := [][]bool{
		{true, true, false, false},
		{true, false, true, false},
		{false, true},
	}
	got := blocks(bitmap[:2], "")
	if want := "█▀▄ \n"; got != want {
		t.Errorf("blocks = %q, want %q", got, want)
	}

	got = blocks([][]bool{{true, false}}, "> ")
	if want := "> ▀ \n"; got != want {
		t.Errorf("odd rows = %q, want %q", got, want)
	}
}

func TestRender(t *testing.T) {
	out, err := Render("2@pairing-ref,key,secret", "  ")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("got %d lines, want a full code", len(lines))
	}
	for i, l := range lines {
		if !strings.HasPrefix(l, "  ") {
			t.Fatalf("line %d missing indent: %q", i, l)
		}
	}
	if !strings.ContainsRune(out, '█') {
		t.Error("no dark modules rendered")
	}
}

func TestRenderEmpty(t *testing.T) {
	if _, err := Render("", ""); err == nil {
		t.Error("expected error for empty content")
	}
}
