package qr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
)

// Renderer turns an otpauth:// provisioning URI into a PNG QR code.
type Renderer interface {
	Render(uri string) ([]byte, error)
}

type renderer struct {
	size int
}

func NewRenderer() Renderer {
	return &renderer{size: 256}
}

func (r *renderer) Render(uri string) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse provisioning uri: %w", err)
	}
	img, err := key.Image(r.size, r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}
