package compressor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
)

// MetadataCopier carries descriptive metadata from an original file over to
// its compressed artifact.
type MetadataCopier interface {
	Copy(src, dst string) error
}

// skipped tags either describe the file itself or would be wrong once the
// pixels have been re-encoded and auto-oriented.
var skippedTagPrefixes = []string{
	"SourceFile", "File", "Directory", "ExifTool", "Orientation",
	"ImageWidth", "ImageHeight", "ImageSize", "ExifImageWidth", "ExifImageHeight",
	"Megapixels", "ThumbnailImage", "ThumbnailOffset", "ThumbnailLength",
	"EncodingProcess", "BitsPerSample", "ColorComponents", "YCbCrSubSampling",
}

// ExiftoolCopier copies tags with a long running exiftool process. A missing
// exiftool binary makes every Copy fail, which callers treat as a warning.
type ExiftoolCopier struct {
	mu   sync.Mutex
	once sync.Once
	et   *exiftool.Exiftool
	err  error
}

// NewExiftoolCopier returns a copier that starts exiftool on first use.
func NewExiftoolCopier() *ExiftoolCopier {
	return &ExiftoolCopier{}
}

func (c *ExiftoolCopier) tool() (*exiftool.Exiftool, error) {
	c.once.Do(func() {
		c.et, c.err = exiftool.NewExiftool()
	})
	return c.et, c.err
}

// Copy writes the writable tags of src into dst.
func (c *ExiftoolCopier) Copy(src, dst string) error {
	et, err := c.tool()
	if err != nil {
		return fmt.Errorf("start exiftool: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files := et.ExtractMetadata(src)
	if len(files) == 0 {
		return fmt.Errorf("no metadata for %s", src)
	}
	if files[0].Err != nil {
		return fmt.Errorf("read metadata: %w", files[0].Err)
	}

	target := exiftool.EmptyFileMetadata()
	target.File = dst
	for key, value := range files[0].Fields {
		if skipTag(key) {
			continue
		}
		target.Fields[key] = value
	}
	if len(target.Fields) == 0 {
		return nil
	}

	out := []exiftool.FileMetadata{target}
	et.WriteMetadata(out)
	if out[0].Err != nil {
		return fmt.Errorf("write metadata: %w", out[0].Err)
	}
	return nil
}

// Close stops the exiftool process if it was started.
func (c *ExiftoolCopier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.et == nil {
		return nil
	}
	return c.et.Close()
}

func skipTag(key string) bool {
	for _, p := range skippedTagPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
