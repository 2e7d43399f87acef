package detector

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const MaxImageBytes int64 = 10 * 1024 * 1024

const (
	msgNotImage = "Por favor seleccione un archivo de imagen válido"
	msgTooLarge = "El tamaño del archivo debe ser menor a 10MB"
)

// ValidateImage checks a declared MIME type and size against upload limits.
// The size cap applies regardless of type.
func ValidateImage(mimeType string, size int64) error {
	if size > MaxImageBytes {
		return &ValidationError{Reason: msgTooLarge}
	}
	if !IsImageMIME(mimeType) {
		return &ValidationError{Reason: msgNotImage}
	}
	return nil
}

func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

// SniffMIME detects the content type from the leading bytes, dropping any
// parameters.
func SniffMIME(data []byte) string {
	m := mimetype.Detect(data).String()
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return m
}
