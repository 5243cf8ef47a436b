package barcode

import (
	"errors"
	"fmt"
)

// DecodeError reports that an image was read fine but holds no decodable QR
// code. Retrying on the same artifact will not help.
type DecodeError struct {
	Width  int
	Height int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no qr code found in %dx%d image", e.Width, e.Height)
	}
	return fmt.Sprintf("no qr code found in %dx%d image: %v", e.Width, e.Height, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err (or anything it wraps) is a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
