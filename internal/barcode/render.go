package barcode

import (
	"io"

	"github.com/mdp/qrterminal/v3"
)

// Render writes text as an ANSI QR code.
func Render(w io.Writer, text string) {
	qrterminal.GenerateWithConfig(text, qrterminal.Config{
		Level:     qrterminal.M,
		Writer:    w,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
}
