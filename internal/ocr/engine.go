package ocr

import (
	"context"
	"image"
)

// Engine is the recognition capability: one grayscale raster in, plain
// text out. The production implementation shells out to tesseract;
// tests substitute a fake.
type Engine interface {
	Recognize(ctx context.Context, img *image.Gray) (string, error)
}

// PageRenderer turns a stored document into the grayscale rasters the
// engine consumes.
type PageRenderer interface {
	// RenderPDF returns at most maxPages page rasters in page order.
	RenderPDF(ctx context.Context, path string, maxPages int) ([]*image.Gray, error)
	// LoadImage decodes a single raster image file.
	LoadImage(path string) (*image.Gray, error)
}
