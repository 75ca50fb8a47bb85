// Package pdfdoc gives the compression pipeline access to the raster images
// embedded in a PDF without rasterising pages. Vector and text content is
// never touched.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageImage references one embedded raster image. ObjNr identifies the image
// XObject inside the document; the same object may be drawn on several pages
// but is reported once.
type PageImage struct {
	Page     int
	ObjNr    int
	Name     string
	FileType string
	Filter   string
	Data     []byte
}

// SkippedImage is an embedded image left out of Images, with the reason.
type SkippedImage struct {
	Page   int
	ObjNr  int
	Filter string
	Reason string
}

// Document is an opened PDF held in memory.
type Document struct {
	path    string
	ctx     *model.Context
	skipped []SkippedImage
}

// Configuration returns the pdfcpu configuration used across the module.
func Configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true
	return conf
}

// Open reads, validates and optimises the PDF at path. Optimisation builds
// the page to image index Images walks and merges duplicate images.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}
	defer f.Close()

	conf := Configuration()
	conf.Cmd = model.UPDATEIMAGES
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}
	return &Document{path: path, ctx: ctx}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Images returns every replaceable embedded raster image across every page.
// Page thumbnails are never listed. Image masks and masked images are left
// out: substituting them with an opaque JPEG would change what the page looks
// like. An image pdfcpu cannot decode is left out as well and the rest are
// still returned. Every image left out is listed by Skipped.
func (d *Document) Images() ([]PageImage, error) {
	if d.ctx == nil {
		return nil, errors.New("document is closed")
	}
	d.skipped = nil
	seen := make(map[int]struct{})
	for _, ref := range d.ctx.PageThumbs {
		seen[ref.ObjectNumber.Value()] = struct{}{}
	}
	var out []PageImage

	for page := 1; page <= d.ctx.PageCount; page++ {
		objNrs := pdfcpu.ImageObjNrs(d.ctx, page)
		sort.Ints(objNrs)

		for _, objNr := range objNrs {
			if _, ok := seen[objNr]; ok {
				continue
			}
			seen[objNr] = struct{}{}

			img, err := d.extract(page, objNr)
			if err != nil {
				d.skip(page, objNr, "", err.Error())
				continue
			}
			if img != nil {
				out = append(out, *img)
			}
		}
	}

	return out, nil
}

// Skipped returns the images the last Images call left out.
func (d *Document) Skipped() []SkippedImage {
	return d.skipped
}

// extract returns nil without error for images that are not replaceable.
func (d *Document) extract(page, objNr int) (*PageImage, error) {
	obj := d.ctx.Optimize.ImageObjects[objNr]
	if obj == nil || obj.ImageDict == nil {
		return nil, fmt.Errorf("image obj %d not indexed", objNr)
	}
	name := obj.ResourceNames[page-1]

	stub, err := pdfcpu.ExtractImage(d.ctx, obj.ImageDict, false, name, objNr, true)
	if err != nil {
		return nil, fmt.Errorf("inspect image: %w", err)
	}
	if stub == nil {
		return nil, errors.New("no image stream")
	}
	switch {
	case stub.IsImgMask:
		d.skip(page, objNr, stub.Filter, "image mask")
		return nil, nil
	case stub.HasSMask || stub.HasImgMask:
		d.skip(page, objNr, stub.Filter, "masked image")
		return nil, nil
	}

	img, err := pdfcpu.ExtractImage(d.ctx, obj.ImageDict, false, name, objNr, false)
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", stub.Filter, err)
	}
	if img == nil || img.Reader == nil {
		d.skip(page, objNr, stub.Filter, "unsupported filter")
		return nil, nil
	}
	data, err := io.ReadAll(img)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &PageImage{
		Page:     page,
		ObjNr:    objNr,
		Name:     name,
		FileType: img.FileType,
		Filter:   stub.Filter,
		Data:     data,
	}, nil
}

func (d *Document) skip(page, objNr int, filter, reason string) {
	d.skipped = append(d.skipped, SkippedImage{Page: page, ObjNr: objNr, Filter: filter, Reason: reason})
}

// Replace substitutes the image object referenced by img with the image read
// from r. The replacement must keep the width and height of the original.
// The change lives in memory until Save.
func (d *Document) Replace(img PageImage, r io.Reader) error {
	if err := pdfcpu.UpdateImagesByObjNr(d.ctx, r, img.ObjNr); err != nil {
		return fmt.Errorf("replace image obj %d: %w", img.ObjNr, err)
	}
	return nil
}

// Save writes the document to path. Replaced images overwrite their objects
// in place, so the context optimised by Open is written as is.
func (d *Document) Save(path string) error {
	if err := api.WriteContextFile(d.ctx, path); err != nil {
		return fmt.Errorf("write pdf %s: %w", path, err)
	}
	return nil
}

// Close releases the document. The in-memory context needs no teardown but the
// method keeps Document interchangeable with other document backends.
func (d *Document) Close() error {
	d.ctx = nil
	return nil
}

// Optimize rewrites inputPath to outputPath through pdfcpu's lossless
// optimiser: duplicate resources are merged, unused objects dropped and
// objects packed into compressed object streams. Pixel data is untouched.
func Optimize(inputPath, outputPath string) error {
	if err := api.OptimizeFile(inputPath, outputPath, Configuration()); err != nil {
		return fmt.Errorf("optimize %s: %w", inputPath, err)
	}
	return nil
}

// ImportImages builds a PDF at outputPath with one page per image file.
func ImportImages(imagePaths []string, outputPath string) error {
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImagesFile(imagePaths, outputPath, imp, Configuration()); err != nil {
		return fmt.Errorf("import images: %w", err)
	}
	return nil
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
