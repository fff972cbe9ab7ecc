// Package qrcode renders scan payloads into PNG images for payers.
package qrcode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const defaultSize = 256

var ErrEmptyPayload = errors.New("empty_qr_payload")

// Renderer turns a text payload into a base64 encoded PNG.
type Renderer struct {
	Size  int
	Level qr.ErrorCorrectionLevel
}

func NewRenderer() *Renderer {
	return &Renderer{Size: defaultSize, Level: qr.M}
}

func (r *Renderer) PNG(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	code, err := qr.Encode(payload, r.Level, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	size := r.Size
	if size <= 0 {
		size = defaultSize
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) Base64PNG(payload string) (string, error) {
	raw, err := r.PNG(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
