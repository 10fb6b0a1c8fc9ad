// Package vips implements codec.Codec using libvips via govips, for
// production use where true WebP encode/decode matters. Decode loads the
// image at full size; it does not shrink on load. Adapted from adapters/vips/processor.go of the
// teacher image-processor.
package vips

import (
	"fmt"
	"os"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/oipipe/codec"
	"github.com/Skryldev/oipipe/imgerr"
)

// Config configures the libvips backend.
type Config struct {
	Quality      int
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend is a codec.Codec backed by libvips. NewBackend starts libvips;
// call Shutdown once at process exit.
type Backend struct {
	cfg Config
}

// NewBackend initialises libvips and returns a ready Backend.
func NewBackend(cfg Config) *Backend {
	if cfg.Quality <= 0 {
		cfg.Quality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources.
func (b *Backend) Shutdown() { govips.Shutdown() }

func (b *Backend) Decode(path string) (*codec.Image, error) {
	ref, err := govips.NewImageFromFile(path)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "vips.decode", err)
	}
	defer ref.Close()

	png, _, err := ref.ExportPng(govips.NewPngExportParams())
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "vips.decode.export", err)
	}

	raw, err := govips.NewImageFromBuffer(png)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "vips.decode.reimport", err)
	}
	defer raw.Close()

	// The opaque Image is always interleaved 4-band RGBA (spec. §3); a
	// source without an alpha channel reimports as 3-band, so force it
	// to 4 bands before extracting a fixed-stride buffer.
	if err := raw.EnsureAlpha(); err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "vips.decode.ensure_alpha", err)
	}
	if raw.Bands() != 4 {
		return nil, imgerr.New(imgerr.CategoryResourceFailure, "vips.decode.bands",
			fmt.Errorf("expected 4 bands after EnsureAlpha, got %d", raw.Bands()))
	}

	buf, err := raw.ToBytes()
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "vips.decode.tobytes", err)
	}

	img := codec.Alloc(raw.Width(), raw.Height())
	copy(img.Pixels, buf)
	return img, nil
}

// Encode writes img to path, choosing the export format from the file
// extension (.jpg/.jpeg, .png, .webp).
func (b *Backend) Encode(img *codec.Image, path string) error {
	ref, err := govips.NewImageFromMemory(img.Pixels, img.Width, img.Height, 4, govips.BandFormatUchar)
	if err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "vips.encode.frommemory", err)
	}
	defer ref.Close()

	var buf []byte
	switch ext(path) {
	case "jpg", "jpeg":
		ep := govips.NewJpegExportParams()
		ep.Quality = b.cfg.Quality
		buf, _, err = ref.ExportJpeg(ep)
	case "webp":
		ep := govips.NewWebpExportParams()
		ep.Quality = b.cfg.Quality
		buf, _, err = ref.ExportWebp(ep)
	default:
		buf, _, err = ref.ExportPng(govips.NewPngExportParams())
	}
	if err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "vips.encode.export", err)
	}
	return writeFile(path, buf)
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}

var writeFile = func(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "vips.encode.write", err)
	}
	return nil
}
