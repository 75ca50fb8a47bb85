package media

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// Info is the descriptive metadata of a photo handed to the assistant as
// context.
type Info struct {
	Taken  *time.Time
	Camera string
	Width  int
	Height int
}

// Summary renders Info as a single line, or "" when nothing is known.
func (i Info) Summary() string {
	var parts []string
	if i.Taken != nil {
		parts = append(parts, "taken "+i.Taken.Format("2006-01-02 15:04"))
	}
	if i.Camera != "" {
		parts = append(parts, "camera "+i.Camera)
	}
	if i.Width > 0 && i.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", i.Width, i.Height))
	}
	return strings.Join(parts, ", ")
}

// Inspector reads EXIF data. Results are cached by path, size and mtime.
type Inspector struct {
	logger logrus.FieldLogger
	cache  sync.Map
}

// NewInspector returns a new Inspector.
func NewInspector(logger logrus.FieldLogger) *Inspector {
	return &Inspector{logger: logger}
}

// Inspect returns the EXIF info of an image. Files without EXIF yield an
// empty Info and no error.
func (e *Inspector) Inspect(filePath string) (Info, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat file: %w", err)
	}

	key := fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().Unix())
	if v, ok := e.cache.Load(key); ok {
		return v.(Info), nil
	}

	info, err := e.decode(filePath)
	if err != nil {
		e.logger.Debugf("no EXIF in %s: %v", filePath, err)
		info = Info{}
	}
	e.cache.Store(key, info)
	return info, nil
}

func (e *Inspector) decode(filePath string) (Info, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	var info Info
	if tm, err := x.DateTime(); err == nil {
		info.Taken = &tm
	} else if date := stringTag(x, exif.DateTimeOriginal); date != "" {
		info.Taken = parseEXIFDateTime(date)
	}

	maker := stringTag(x, exif.Make)
	model := stringTag(x, exif.Model)
	switch {
	case maker != "" && !strings.HasPrefix(model, maker):
		info.Camera = strings.TrimSpace(maker + " " + model)
	default:
		info.Camera = model
	}

	info.Width = intTag(x, exif.PixelXDimension)
	info.Height = intTag(x, exif.PixelYDimension)
	return info, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

func intTag(x *exif.Exif, name exif.FieldName) int {
	tag, err := x.Get(name)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

// parseEXIFDateTime returns nil if no known layout matches.
func parseEXIFDateTime(dateStr string) *time.Time {
	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
	}
	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}
	return nil
}
