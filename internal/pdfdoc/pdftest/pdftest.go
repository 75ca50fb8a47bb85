// Package pdftest writes small but well-formed PDF files for tests. Pages
// carry text and any number of DCT (JPEG) encoded images, optionally with a
// soft mask, or a deliberately corrupt image stream.
package pdftest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"

	"github.com/disintegration/imaging"
)

// NoiseImage returns an opaque image filled with pseudo random pixels.
// Noise defeats JPEG, so encoded sizes grow steeply with quality.
func NoiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

// Write creates a PDF at path with one page per entry in pages. A nil entry
// produces a text-only page; otherwise the image is embedded as a JPEG at
// the given quality and drawn on the page.
func Write(path string, pages []image.Image, quality int) error {
	data, err := Build(pages, quality)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Build returns the bytes of the PDF described in Write.
func Build(pages []image.Image, quality int) ([]byte, error) {
	spec := make([]Page, len(pages))
	for i, img := range pages {
		if img != nil {
			spec[i].Images = []Image{{Img: img}}
		}
	}
	return BuildPages(spec, quality)
}

// Image is one image XObject drawn on a page.
type Image struct {
	Img image.Image
	// SoftMask attaches an 8 bit DeviceGray soft mask of the same size.
	SoftMask bool
	// Corrupt writes a FlateDecode stream whose bytes do not inflate.
	Corrupt bool
}

// Page lists the images drawn on one page, in order.
type Page struct {
	Images []Image
}

// WritePages is Write for pages described with Page.
func WritePages(path string, pages []Page, quality int) error {
	data, err := BuildPages(pages, quality)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// BuildPages returns the bytes of a PDF with one page per entry in pages.
func BuildPages(pages []Page, quality int) ([]byte, error) {
	if len(pages) == 0 {
		pages = []Page{{}}
	}

	var objects [][]byte
	add := func(body []byte) int {
		objects = append(objects, body)
		return len(objects)
	}

	catalog := add(nil) // filled once the page tree number is known
	pagesObj := add(nil)
	font := add([]byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"))

	var kids []int
	for i, p := range pages {
		content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (Page %d) Tj ET", i+1)
		resources := fmt.Sprintf("/Font << /F1 %d 0 R >>", font)

		var xobjects bytes.Buffer
		for j, im := range p.Images {
			imgObj, err := imageObject(im, quality, add)
			if err != nil {
				return nil, fmt.Errorf("page %d image %d: %w", i+1, j, err)
			}
			fmt.Fprintf(&xobjects, " /Im%d %d 0 R", j, imgObj)
			content += fmt.Sprintf(" q 200 0 0 200 %d 300 cm /Im%d Do Q", 72+j*210, j)
		}
		if xobjects.Len() > 0 {
			resources += fmt.Sprintf(" /XObject <<%s >>", xobjects.String())
		}

		contentObj := add([]byte(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)))
		page := add([]byte(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << %s >> /Contents %d 0 R >>",
			pagesObj, resources, contentObj)))
		kids = append(kids, page)
	}

	var kidRefs bytes.Buffer
	for i, k := range kids {
		if i > 0 {
			kidRefs.WriteByte(' ')
		}
		fmt.Fprintf(&kidRefs, "%d 0 R", k)
	}
	objects[catalog-1] = []byte(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))
	objects[pagesObj-1] = []byte(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kidRefs.String(), len(kids)))

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n", i+1)
		out.Write(body)
		out.WriteString("\nendobj\n")
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(objects)+1)
	out.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, catalog, xref)

	return out.Bytes(), nil
}

func imageObject(im Image, quality int, add func([]byte) int) (int, error) {
	b := im.Img.Bounds()
	extra := ""

	if im.SoftMask {
		mask := make([]byte, b.Dx()*b.Dy())
		for i := range mask {
			mask[i] = uint8(i % 256)
		}
		maskObj := add(stream(fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Length %d >>",
			b.Dx(), b.Dy(), len(mask)), mask))
		extra = fmt.Sprintf(" /SMask %d 0 R", maskObj)
	}

	if im.Corrupt {
		junk := bytes.Repeat([]byte("not a zlib stream "), 8)
		return add(stream(fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /FlateDecode /Length %d >>",
			b.Dx(), b.Dy(), len(junk)), junk)), nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, im.Img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return add(stream(fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode%s /Length %d >>",
		b.Dx(), b.Dy(), extra, buf.Len()), buf.Bytes())), nil
}

func stream(dict string, data []byte) []byte {
	var obj bytes.Buffer
	obj.WriteString(dict)
	obj.WriteString("\nstream\n")
	obj.Write(data)
	obj.WriteString("\nendstream")
	return obj.Bytes()
}
