// Package qrtext renders pairing QR codes for terminals.
package qrtext

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Render draws content as a QR code using half-block characters, so two
// bitmap rows share one line. Each line starts with indent.
func Render(content, indent string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty qr content")
	}
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return blocks(qr.Bitmap(), indent), nil
}

func blocks(bitmap [][]bool, indent string) string {
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString(indent)
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
