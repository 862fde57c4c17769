// Package raster converts PDF pages into page images for visual checks.
// It shells out to poppler's pdftoppm; when that binary is missing the
// caller must treat visual validation as unavailable and carry on with
// text-only validation.
package raster

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/casaflow-io/casaflowgo/internal/pdftext"
)

// ErrEngineUnavailable is returned when the raster binary cannot be found.
// Callers degrade to text-only validation instead of aborting extraction.
var ErrEngineUnavailable = fmt.Errorf("raster engine unavailable: pdftoppm not found")

// PageImage is one rasterized page
type PageImage struct {
	PageNumber int
	Bytes      []byte
	Width      int
	Height     int
}

// Options controls rasterization
type Options struct {
	MaxPages int
	DPI      int
	Format   string // only "png" is supported
}

// Engine rasterizes PDFs via an external binary. Availability is probed once
// per process and cached.
type Engine struct {
	command string

	probeOnce sync.Once
	probeErr  error
}

// NewEngine creates a raster engine around the given command (normally
// "pdftoppm", resolvable via PATH).
func NewEngine(command string) *Engine {
	if command == "" {
		command = "pdftoppm"
	}
	return &Engine{command: command}
}

// Available probes for the raster binary, caching the outcome.
func (e *Engine) Available() error {
	e.probeOnce.Do(func() {
		if _, err := exec.LookPath(e.command); err != nil {
			e.probeErr = ErrEngineUnavailable
		}
	})
	return e.probeErr
}

// Rasterize converts up to opts.MaxPages pages into images, ascending page
// order. A document shorter than MaxPages yields fewer images, not an error.
func (e *Engine) Rasterize(doc []byte, opts Options) ([]PageImage, error) {
	if err := e.Available(); err != nil {
		return nil, err
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 8
	}
	if opts.DPI <= 0 {
		opts.DPI = 150
	}
	if opts.Format != "" && opts.Format != "png" {
		return nil, fmt.Errorf("unsupported raster format %q", opts.Format)
	}

	lastPage := opts.MaxPages
	if n, err := pdftext.PageCount(doc); err == nil && n < lastPage {
		lastPage = n
	}

	tmpDir, err := os.MkdirTemp("", "raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(inputPath, doc, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.Command(e.command,
		"-png",
		"-r", strconv.Itoa(opts.DPI),
		"-f", "1",
		"-l", strconv.Itoa(lastPage),
		inputPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed: %v (%s)", e.command, err, bytes.TrimSpace(out))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("raster produced no pages")
	}
	sort.Strings(matches) // pdftoppm zero-pads page numbers, lexical order is page order

	var pages []PageImage
	for i, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read page image: %w", err)
		}

		img := PageImage{PageNumber: i + 1, Bytes: data}
		if cfg, err := png.DecodeConfig(bytes.NewReader(data)); err == nil {
			img.Width = cfg.Width
			img.Height = cfg.Height
		}
		pages = append(pages, img)
	}
	return pages, nil
}
