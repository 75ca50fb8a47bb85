package media

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ArtifactPath returns a timestamp-qualified path inside dir. The short
// random suffix keeps two jobs started in the same second apart. An empty
// ext names a directory.
func ArtifactPath(dir, label, ext string) string {
	name := time.Now().Format("20060102_150405") + "_" + uuid.NewString()[:8] + "_" + label + ext
	return filepath.Join(dir, name)
}
