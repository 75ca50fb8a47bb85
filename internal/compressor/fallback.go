package compressor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"desk-assistant-go/internal/media"
)

// CopyVerbatim copies inputPath byte for byte into outputDir. It is the last
// PDF tier and always yields a usable artifact unless the filesystem fails.
func CopyVerbatim(inputPath, outputDir string) (string, error) {
	out := media.ArtifactPath(outputDir, "original", filepath.Ext(inputPath))
	if err := copyFile(inputPath, out); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("copy original: %w", err)
	}
	return out, nil
}

// copyFile copies file src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	return writeAll(out, in)
}

// fileWriter is the part of *os.File writeAll needs.
type fileWriter interface {
	io.WriteCloser
	Sync() error
}

// writeAll copies in to out, syncs and closes out. A failed close is
// reported like any other write error.
func writeAll(out fileWriter, in io.Reader) (err error) {
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
