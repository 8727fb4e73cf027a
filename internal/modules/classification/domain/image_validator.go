package domain

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG形式のサポート
	_ "image/png"  // PNG形式のサポート
)

// DefaultMaxImageBytes アップロード画像の上限（16MB）
const DefaultMaxImageBytes = 16 * 1024 * 1024

// ValidateImageData 画像データを検証（JPEG/PNGのみ）
func ValidateImageData(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return errors.New("image data is empty")
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("image size exceeds %dMB", maxBytes/(1024*1024))
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid image format: %w", err)
	}

	allowedFormats := map[string]bool{"png": true, "jpeg": true, "jpg": true}
	if !allowedFormats[format] {
		return fmt.Errorf("unsupported format: %s", format)
	}

	return nil
}

// DetectMediaType 画像のMIMEタイプを判定（簡易版）
func DetectMediaType(data []byte) string {
	if len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	return "image/png"
}
