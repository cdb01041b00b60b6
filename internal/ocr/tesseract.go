package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TesseractCLI runs the tesseract binary as a scoped subprocess per
// raster. The process is killed when the timeout expires; a slow page
// must not block the worker indefinitely.
type TesseractCLI struct {
	Command     string
	Languages   string
	PageSegMode int
	EngineMode  int
	Dpi         int
	Timeout     time.Duration

	logger *slog.Logger
}

func NewTesseractCLI(command, languages string, psm, oem, dpi int, timeout time.Duration, logger *slog.Logger) *TesseractCLI {
	if command == "" {
		command = "tesseract"
	}
	return &TesseractCLI{
		Command:     command,
		Languages:   languages,
		PageSegMode: psm,
		EngineMode:  oem,
		Dpi:         dpi,
		Timeout:     timeout,
		logger:      logger.With("component", "tesseract"),
	}
}

func (t *TesseractCLI) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	tmpDir, err := os.MkdirTemp("", "tess_")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "in.png")
	outBase := filepath.Join(tmpDir, "out") // tesseract appends .txt

	f, err := os.Create(inPath)
	if err != nil {
		return "", fmt.Errorf("create input raster: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode input raster: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("flush input raster: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Command, t.args(inPath, outBase)...)
	var cli bytes.Buffer
	cmd.Stdout = &cli
	cmd.Stderr = &cli

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		// CommandContext has already killed the process.
		return "", fmt.Errorf("tesseract timed out after %s", t.Timeout)
	}
	if runErr != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", runErr, strings.TrimSpace(cli.String()))
	}

	outPath := outBase + ".txt"
	text, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("tesseract did not produce output at %s: %w", outPath, err)
	}
	return string(text), nil
}

func (t *TesseractCLI) args(inPath, outBase string) []string {
	dpi := t.Dpi
	if dpi < 100 {
		dpi = 100
	}
	return []string{
		inPath,
		outBase,
		"-l", t.Languages,
		"--psm", strconv.Itoa(t.PageSegMode),
		"--oem", strconv.Itoa(t.EngineMode),
		"--dpi", strconv.Itoa(dpi),
	}
}

var _ Engine = (*TesseractCLI)(nil)
