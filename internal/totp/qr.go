package totp

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
)

// QRPNG renders a provisioning URI as a PNG QR code of the given pixel
// size. A rendering failure is returned to the caller and must never
// block the raw-secret fallback: the UI always has the base32 secret
// from the enrollment step.
func QRPNG(uri string, size int) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid provisioning URI: %w", err)
	}

	img, err := key.Image(size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR PNG: %w", err)
	}
	return buf.Bytes(), nil
}
