// Package stdcodec implements codec.Decoder/codec.Encoder using the
// standard library's image/jpeg and image/png packages, and
// golang.org/x/image/webp for lossy WebP decoding. Adapted from
// adapters/decoder and adapters/encoder of the teacher image-processor.
package stdcodec

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/webp"

	"github.com/Skryldev/oipipe/codec"
	"github.com/Skryldev/oipipe/imgerr"
)

// JPEG is a codec.Codec for JPEG files.
type JPEG struct{ Quality int }

// NewJPEG returns a JPEG codec with the given default encode quality
// (1-100; defaults to 85 when non-positive).
func NewJPEG(quality int) *JPEG {
	if quality <= 0 {
		quality = 85
	}
	return &JPEG{Quality: quality}
}

func (j *JPEG) Decode(path string) (*codec.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "jpeg.decode.open", err)
	}
	defer f.Close()

	src, err := jpeg.Decode(f)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "jpeg.decode", err)
	}
	return toImage(src), nil
}

func (j *JPEG) Encode(img *codec.Image, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "jpeg.encode.open", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, fromImage(img), &jpeg.Options{Quality: j.Quality}); err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "jpeg.encode", err)
	}
	return nil
}

// PNG is a codec.Codec for PNG files.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) Decode(path string) (*codec.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "png.decode.open", err)
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "png.decode", err)
	}
	return toImage(src), nil
}

func (p *PNG) Encode(img *codec.Image, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "png.encode.open", err)
	}
	defer f.Close()

	if err := png.Encode(f, fromImage(img)); err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "png.encode", err)
	}
	return nil
}

// WebP is a codec.Decoder for lossy WebP files, backed by
// golang.org/x/image/webp. There is no pure-Go WebP encoder in the
// standard library or x/image; WebP output is produced by codec/vips
// instead (see DESIGN.md).
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) Decode(path string) (*codec.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "webp.decode.read", err)
	}
	src, err := webp.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "webp.decode", err)
	}
	return toImage(src), nil
}

// ForPath picks a Codec implementation based on the file's extension.
// It is a convenience for callers outside the core; neither the core nor
// cmd/oipctl (which uses NewPNG) calls it.
func ForPath(path string, defaultQuality int) (codec.Codec, error) {
	switch ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:]); ext {
	case "jpg", "jpeg":
		return NewJPEG(defaultQuality), nil
	case "png":
		return NewPNG(), nil
	default:
		return nil, fmt.Errorf("stdcodec: no stdlib codec for extension %q", ext)
	}
}

// toImage converts a decoded image.Image into an opaque codec.Image with
// 32-bit-per-pixel RGBA samples.
func toImage(src image.Image) *codec.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := codec.Alloc(w, h)
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	copy(out.Pixels, rgba.Pix)
	return out
}

// fromImage builds a standard image.Image view over an opaque codec.Image
// for use with the stdlib encoders.
func fromImage(img *codec.Image) image.Image {
	rgba := &image.RGBA{
		Pix:    img.Pixels,
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
	return rgba
}
