package compressor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/media"
)

// QualityAttempt records one encode of the search loop.
type QualityAttempt struct {
	Quality int
	Size    int64
}

// QualitySearch lowers JPEG quality step by step until the encoded image fits
// a byte budget.
type QualitySearch struct {
	Step  int
	Floor int
	log   logrus.FieldLogger
}

// NewQualitySearch returns a search that decrements by step and gives up
// once quality would fall below floor.
func NewQualitySearch(step, floor int, log logrus.FieldLogger) *QualitySearch {
	if step <= 0 {
		step = 5
	}
	if floor <= 0 {
		floor = 10
	}
	return &QualitySearch{Step: step, Floor: floor, log: log}
}

// Compress encodes the image at inputPath as JPEG into outputDir, starting at
// startQuality. It returns ErrSearchExhausted when no quality down to the
// floor meets maxBytes; in that case no file is written.
func (q *QualitySearch) Compress(inputPath, outputDir string, maxBytes int64, startQuality int) (string, error) {
	img, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	flat := flatten(img)

	data, attempts, err := q.search(flat, maxBytes, startQuality)
	if err != nil {
		q.log.WithFields(logrus.Fields{
			"file":     inputPath,
			"attempts": len(attempts),
			"budget":   maxBytes,
		}).Warn("quality search exhausted")
		return "", err
	}

	outPath := media.ArtifactPath(outputDir, "compressed", ".jpg")
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("write compressed image: %w", err)
	}

	last := attempts[len(attempts)-1]
	q.log.WithFields(logrus.Fields{
		"file":    inputPath,
		"output":  outPath,
		"quality": last.Quality,
		"size":    last.Size,
	}).Info("image compressed")
	return outPath, nil
}

// search runs the descending quality loop in memory.
func (q *QualitySearch) search(img image.Image, maxBytes int64, startQuality int) ([]byte, []QualityAttempt, error) {
	var attempts []QualityAttempt
	var buf bytes.Buffer

	for quality := startQuality; quality >= q.Floor; quality -= q.Step {
		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, attempts, fmt.Errorf("encode at quality %d: %w", quality, err)
		}
		attempts = append(attempts, QualityAttempt{Quality: quality, Size: int64(buf.Len())})

		if int64(buf.Len()) <= maxBytes {
			return buf.Bytes(), attempts, nil
		}
	}

	return nil, attempts, ErrSearchExhausted
}

// flatten removes transparency by compositing onto white, since JPEG cannot
// carry an alpha channel.
func flatten(img image.Image) image.Image {
	if isOpaque(img) {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
