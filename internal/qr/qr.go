// Package qr renders pairing codes to PNG files.
package qr

import (
	"fmt"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

// WritePNG renders the pairing code into a PNG under dir and returns the
// file path. The caller removes the file when done.
func WritePNG(dir, code string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create qr dir: %w", err)
	}

	path := filepath.Join(dir, "pairing-qr.png")
	if err := qrcode.WriteFile(code, qrcode.Medium, 512, path); err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}
	return path, nil
}
