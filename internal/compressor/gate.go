package compressor

import (
	"fmt"
	"os"
)

// NeedsCompression reports whether the file at path is larger than budget
// bytes. A stat failure is an I/O error and is returned as such.
func NeedsCompression(path string, budget int64) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat input: %w", err)
	}
	return info.Size() > budget, nil
}

// MeetsThreshold reports whether a candidate is small enough to be accepted:
// candidate < original*ratio. The boundary itself is rejected.
func MeetsThreshold(original, candidate int64, ratio float64) bool {
	return float64(candidate) < float64(original)*ratio
}
