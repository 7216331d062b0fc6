package views

import (
	"strings"
	"unicode"
)

// glyphModifiers are codepoints that compose emoji. tcell measures them as
// separate cells, which shifts every column after them.
var glyphModifiers = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1}, // zero width joiner
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1F3FB, Hi: 0x1F3FF, Stride: 1}, // skin tones
		{Lo: 0xE0100, Hi: 0xE01EF, Stride: 1},
	},
}

// sanitizeForTerminal drops emoji modifiers, so a toned thumbs up renders
// as a plain one.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(glyphModifiers, r) {
			return -1
		}
		return r
	}, s)
}
