package media

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Kind is the coarse type of an incoming file.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindPDF
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff"}

// IsImageExt reports whether path carries an image extension the pipeline can decode.
func IsImageExt(path string) bool {
	return slices.Contains(imageExts, strings.ToLower(filepath.Ext(path)))
}

// Detect sniffs the first bytes of the file and falls back to the extension.
// Content wins over the name, so a PDF uploaded as "scan.jpg" is a PDF.
func Detect(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return KindUnknown, fmt.Errorf("read %s: %w", path, err)
	}
	return DetectBytes(head[:n], path), nil
}

// DetectBytes classifies data, using name only when the content is ambiguous.
func DetectBytes(data []byte, name string) Kind {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return KindPDF
	}
	ct := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	case ct == "application/pdf":
		return KindPDF
	}

	switch ext := strings.ToLower(filepath.Ext(name)); {
	case ext == ".pdf":
		return KindPDF
	case IsImageExt(name):
		return KindImage
	}
	return KindUnknown
}
