// Package converter turns images into PDFs and PDFs into page images.
package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/media"
	"desk-assistant-go/internal/pdfdoc"
)

// DefaultDPI is the page render resolution used when none is configured.
const DefaultDPI = 300

// formats pdfcpu can import without re-encoding.
var importable = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".tif": true, ".tiff": true, ".webp": true}

// Converter performs format conversions. It keeps no per-call state.
type Converter struct {
	DPI     float64
	Quality int
	log     logrus.FieldLogger
}

// New returns a Converter rendering pages at dpi and encoding them at quality.
func New(dpi float64, quality int, log logrus.FieldLogger) *Converter {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if quality <= 0 || quality > 100 {
		quality = 95
	}
	return &Converter{DPI: dpi, Quality: quality, log: log}
}

// ImageToPDF wraps the image at imagePath into a single page PDF inside outDir.
func (c *Converter) ImageToPDF(ctx context.Context, imagePath, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	src := imagePath
	if !importable[strings.ToLower(filepath.Ext(imagePath))] {
		img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
		if err != nil {
			return "", fmt.Errorf("open image: %w", err)
		}
		tmp := media.ArtifactPath(outDir, "src", ".png")
		if err := imaging.Save(img, tmp); err != nil {
			return "", fmt.Errorf("re-encode image: %w", err)
		}
		defer os.Remove(tmp)
		src = tmp
	}

	out := media.ArtifactPath(outDir, "converted", ".pdf")
	if err := pdfdoc.ImportImages([]string{src}, out); err != nil {
		_ = os.Remove(out)
		return "", err
	}

	c.log.WithFields(logrus.Fields{"input": imagePath, "output": out}).Info("image converted to pdf")
	return out, nil
}

// PDFToImages renders every page of pdfPath as page_<n>.jpg into a new
// timestamp-qualified directory under outDir. It returns the directory and
// the page files in page order.
func (c *Converter) PDFToImages(ctx context.Context, pdfPath, outDir string) (string, []string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return "", nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	dir := media.ArtifactPath(outDir, "pages", "")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("create output dir: %w", err)
	}

	n := doc.NumPage()
	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return dir, pages, err
		}
		img, err := doc.ImageDPI(i, c.DPI)
		if err != nil {
			return dir, pages, fmt.Errorf("render page %d: %w", i+1, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("page_%d.jpg", i+1))
		if err := imaging.Save(img, path, imaging.JPEGQuality(c.Quality)); err != nil {
			return dir, pages, fmt.Errorf("save page %d: %w", i+1, err)
		}
		pages = append(pages, path)
	}

	c.log.WithFields(logrus.Fields{"input": pdfPath, "pages": n, "dpi": c.DPI}).Info("pdf rendered to images")
	return dir, pages, nil
}

// FirstPage renders only the first page, for previews.
func (c *Converter) FirstPage(pdfPath, outDir string) (string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return "", fmt.Errorf("pdf %s has no pages", pdfPath)
	}
	img, err := doc.ImageDPI(0, c.DPI)
	if err != nil {
		return "", fmt.Errorf("render page 1: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := media.ArtifactPath(outDir, "page_1", ".jpg")
	if err := imaging.Save(img, path, imaging.JPEGQuality(c.Quality)); err != nil {
		return "", fmt.Errorf("save page 1: %w", err)
	}
	return path, nil
}
