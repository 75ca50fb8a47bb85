package compressor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/media"
	"desk-assistant-go/internal/pdfdoc"
)

// StreamTier rewrites the document through pdfcpu's lossless optimiser.
type StreamTier struct {
	log logrus.FieldLogger
}

// NewStreamTier returns the stream-recompression tier.
func NewStreamTier(log logrus.FieldLogger) *StreamTier {
	return &StreamTier{log: log}
}

func (t *StreamTier) Name() TierName { return TierStream }

// Compress writes an optimised copy of inputPath into outputDir.
func (t *StreamTier) Compress(ctx context.Context, inputPath, outputDir string) (string, error) {
	out := media.ArtifactPath(outputDir, "compressed", ".pdf")
	if err := pdfdoc.Optimize(inputPath, out); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return out, nil
}

// Document is the view of a PDF the image tier works on.
type Document interface {
	Images() ([]pdfdoc.PageImage, error)
	Replace(img pdfdoc.PageImage, r io.Reader) error
	Save(path string) error
	Close() error
}

// skipReporter is implemented by documents that leave some images out of
// Images.
type skipReporter interface {
	Skipped() []pdfdoc.SkippedImage
}

// DocumentOpener opens the PDF at path.
type DocumentOpener func(path string) (Document, error)

// OpenPDF opens a document with pdfcpu.
func OpenPDF(path string) (Document, error) {
	return pdfdoc.Open(path)
}

// ImageTier re-encodes every embedded raster image as JPEG and substitutes it
// in place. Pages are never rasterised, so text and vector layers stay as
// they are.
type ImageTier struct {
	Quality int
	open    DocumentOpener
	log     logrus.FieldLogger
}

// NewImageTier returns the image-recompression tier. A nil opener uses pdfcpu.
func NewImageTier(quality int, open DocumentOpener, log logrus.FieldLogger) *ImageTier {
	if open == nil {
		open = OpenPDF
	}
	return &ImageTier{Quality: quality, open: open, log: log}
}

func (t *ImageTier) Name() TierName { return TierImage }

// Compress returns ErrNotApplicable when the document has no embedded image,
// or when none of them got smaller. The document is saved once, after all
// substitutions.
func (t *ImageTier) Compress(ctx context.Context, inputPath, outputDir string) (string, error) {
	doc, err := t.open(inputPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	defer doc.Close()

	images, err := doc.Images()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	if r, ok := doc.(skipReporter); ok {
		for _, s := range r.Skipped() {
			t.log.WithFields(logrus.Fields{"page": s.Page, "obj": s.ObjNr, "filter": s.Filter}).Debugf("skip image: %s", s.Reason)
		}
	}
	if len(images) == 0 {
		return "", ErrNotApplicable
	}

	replaced := 0
	for _, img := range images {
		data, err := reencode(img.Data, t.Quality)
		if err != nil {
			// JBIG2, CCITT and friends cannot be decoded here. Leave them.
			t.log.WithFields(logrus.Fields{"obj": img.ObjNr, "filter": img.Filter}).Debugf("skip image: %v", err)
			continue
		}
		if len(data) >= len(img.Data) {
			continue
		}
		if err := doc.Replace(img, bytes.NewReader(data)); err != nil {
			t.log.WithField("obj", img.ObjNr).Warnf("replace image: %v", err)
			continue
		}
		replaced++
	}

	if replaced == 0 {
		return "", ErrNotApplicable
	}

	out := media.ArtifactPath(outputDir, "compressed_images", ".pdf")
	if err := doc.Save(out); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}

	t.log.WithFields(logrus.Fields{"images": len(images), "replaced": replaced}).Debug("embedded images re-encoded")
	return out, nil
}

func reencode(data []byte, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// isTierMiss reports whether err means "try the next tier".
func isTierMiss(err error) bool {
	return errors.Is(err, ErrNotApplicable) || errors.Is(err, ErrTierUnavailable)
}
