package ocr

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	// raster formats seen in scanned uploads
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// PDFRenderer extracts the page images embedded in a (scanned) PDF and
// converts them to 8-bit grayscale. Grayscale input improves recognition
// accuracy and throughput and bounds per-page memory.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

var pageNumberPattern = regexp.MustCompile(`_(\d+)_`)

func (r *PDFRenderer) RenderPDF(ctx context.Context, path string, maxPages int) ([]*image.Gray, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdf page count: %w", err)
	}
	pages := pageCount
	if pages > maxPages {
		pages = maxPages
	}

	outDir, err := os.MkdirTemp("", "pdf_pages_")
	if err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	selected := []string{fmt.Sprintf("1-%d", pages)}
	if err := api.ExtractImagesFile(path, outDir, selected, nil); err != nil {
		return nil, fmt.Errorf("extract page images: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("read page dir: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no page images in %s (first %d pages)", filepath.Base(path), pages)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	// pdfcpu names extracted files <base>_<page>_<resource>.<ext>;
	// order by page number so text concatenation follows the document.
	sort.Slice(names, func(i, j int) bool {
		pi, pj := pageNumberOf(names[i]), pageNumberOf(names[j])
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})

	rasters := make([]*image.Gray, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		gray, err := r.LoadImage(filepath.Join(outDir, name))
		if err != nil {
			return nil, fmt.Errorf("decode page image %s: %w", name, err)
		}
		rasters = append(rasters, gray)
	}
	return rasters, nil
}

func (r *PDFRenderer) LoadImage(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("unsupported image %s: %w", filepath.Base(path), err)
	}
	return ToGrayscale(img), nil
}

// ToGrayscale converts any decoded image to 8-bit grayscale.
func ToGrayscale(src image.Image) *image.Gray {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)
	return gray
}

func pageNumberOf(name string) int {
	m := pageNumberPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

var _ PageRenderer = (*PDFRenderer)(nil)
