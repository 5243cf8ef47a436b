package barcode

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"

	// artifact formats produced by the SDK
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Payload is the content of a decoded QR code.
type Payload struct {
	Text   string
	Raw    []byte
	Width  int // source image width
	Height int // source image height
}

// DecodeFile reads the image at path and decodes it.
func DecodeFile(path string) (Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return Payload{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// DecodeBytes decodes an encoded raster image held in memory.
func DecodeBytes(b []byte) (Payload, error) {
	return Decode(bytes.NewReader(b))
}

// Decode loads a raster image, converts it to greyscale and extracts the QR
// payload from the luminance buffer.
func Decode(r io.Reader) (Payload, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Payload{}, fmt.Errorf("read image: %w", err)
	}

	gray := Greyscale(img)
	b := gray.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Payload{}, &DecodeError{Width: b.Dx(), Height: b.Dy()}
	}

	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(gozxing.NewLuminanceSourceFromImage(gray)))
	if err != nil {
		return Payload{}, &DecodeError{Width: b.Dx(), Height: b.Dy(), Err: err}
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return Payload{}, &DecodeError{Width: b.Dx(), Height: b.Dy(), Err: err}
	}

	return Payload{
		Text:   res.GetText(),
		Raw:    res.GetRawBytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// Greyscale returns a single-channel copy of img. An *image.Gray is returned
// as is.
func Greyscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}
