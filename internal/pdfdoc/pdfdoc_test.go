package pdfdoc

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"desk-assistant-go/internal/pdfdoc/pdftest"
)

func writePDF(t *testing.T, pages []image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.pdf")
	if err := pdftest.Write(path, pages, 100); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestImagesOnTextOnlyDocument(t *testing.T) {
	doc, err := Open(writePDF(t, []image.Image{nil, nil}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close()

	if doc.PageCount() != 2 {
		t.Errorf("page count = %d, want 2", doc.PageCount())
	}
	imgs, err := doc.Images()
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(imgs) != 0 {
		t.Errorf("expected no images, got %d", len(imgs))
	}
}

func TestImagesListsEveryPage(t *testing.T) {
	pages := []image.Image{
		pdftest.NoiseImage(64, 64, 1),
		nil,
		pdftest.NoiseImage(48, 32, 2),
	}
	doc, err := Open(writePDF(t, pages))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	imgs, err := doc.Images()
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(imgs) != 2 {
		t.Fatalf("expected 2 images, got %d", len(imgs))
	}
	if imgs[0].Page != 1 || imgs[1].Page != 3 {
		t.Errorf("unexpected pages %d, %d", imgs[0].Page, imgs[1].Page)
	}
	for _, img := range imgs {
		if len(img.Data) == 0 {
			t.Errorf("image obj %d has no data", img.ObjNr)
		}
	}
}

func TestReplaceAndSaveShrinksDocument(t *testing.T) {
	in := writePDF(t, []image.Image{pdftest.NoiseImage(200, 200, 3)})
	doc, err := Open(in)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	imgs, err := doc.Images()
	if err != nil || len(imgs) != 1 {
		t.Fatalf("Images: %v (%d)", err, len(imgs))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, pdftest.NoiseImage(200, 200, 3), imaging.JPEG, imaging.JPEGQuality(20)); err != nil {
		t.Fatal(err)
	}
	want := buf.Len()
	if err := doc.Replace(imgs[0], &buf); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.pdf")
	if err := doc.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}

	inInfo, _ := os.Stat(in)
	outInfo, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if outInfo.Size() >= inInfo.Size() {
		t.Errorf("expected smaller output, in=%d out=%d", inInfo.Size(), outInfo.Size())
	}

	saved, err := Open(out)
	if err != nil {
		t.Fatalf("saved document does not reopen: %v", err)
	}
	again, err := saved.Images()
	if err != nil || len(again) != 1 {
		t.Fatalf("Images after save: %v (%d)", err, len(again))
	}
	if len(again[0].Data) != want {
		t.Errorf("saved image has %d bytes, want the %d byte replacement", len(again[0].Data), want)
	}
}

func TestReplaceRejectsOtherDimensions(t *testing.T) {
	doc, err := Open(writePDF(t, []image.Image{pdftest.NoiseImage(64, 64, 5)}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	imgs, err := doc.Images()
	if err != nil || len(imgs) != 1 {
		t.Fatalf("Images: %v (%d)", err, len(imgs))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, pdftest.NoiseImage(32, 32, 5), imaging.JPEG); err != nil {
		t.Fatal(err)
	}
	if err := doc.Replace(imgs[0], &buf); err == nil {
		t.Error("expected an error for a replacement of another size")
	}
}

func TestImagesSkipsWithoutFailing(t *testing.T) {
	tests := []struct {
		name       string
		images     []pdftest.Image
		wantImages int
		wantReason string
	}{
		{
			name: "soft mask",
			images: []pdftest.Image{
				{Img: pdftest.NoiseImage(40, 40, 6)},
				{Img: pdftest.NoiseImage(40, 40, 7), SoftMask: true},
			},
			wantImages: 1,
			wantReason: "masked image",
		},
		{
			name: "undecodable stream",
			images: []pdftest.Image{
				{Img: pdftest.NoiseImage(40, 40, 8), Corrupt: true},
				{Img: pdftest.NoiseImage(40, 40, 9)},
			},
			wantImages: 1,
			wantReason: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "in.pdf")
			if err := pdftest.WritePages(path, []pdftest.Page{{Images: tt.images}}, 100); err != nil {
				t.Fatalf("write fixture: %v", err)
			}
			doc, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			imgs, err := doc.Images()
			if err != nil {
				t.Fatalf("Images: %v", err)
			}
			if len(imgs) != tt.wantImages {
				t.Fatalf("expected %d images, got %d", tt.wantImages, len(imgs))
			}
			if imgs[0].Filter != "DCTDecode" {
				t.Errorf("filter = %q, want DCTDecode", imgs[0].Filter)
			}

			skipped := doc.Skipped()
			if len(skipped) != 1 {
				t.Fatalf("expected 1 skipped image, got %+v", skipped)
			}
			if !strings.Contains(skipped[0].Reason, tt.wantReason) {
				t.Errorf("reason = %q, want it to mention %q", skipped[0].Reason, tt.wantReason)
			}
			if skipped[0].ObjNr == imgs[0].ObjNr {
				t.Error("the same object is both listed and skipped")
			}
		})
	}
}

func TestOptimizeKeepsDocumentValid(t *testing.T) {
	in := writePDF(t, []image.Image{nil})
	out := filepath.Join(t.TempDir(), "opt.pdf")
	if err := Optimize(in, out); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !IsPDF(data) {
		t.Error("optimized output is not a PDF")
	}
}

func TestImportImages(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "a.jpg")
	if err := imaging.Save(pdftest.NoiseImage(40, 30, 4), imgPath); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "a.pdf")
	if err := ImportImages([]string{imgPath}, out); err != nil {
		t.Fatalf("ImportImages: %v", err)
	}
	doc, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Errorf("page count = %d, want 1", doc.PageCount())
	}
}
