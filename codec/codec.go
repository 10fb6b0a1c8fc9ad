// Package codec defines the opaque Image value the pipeline core passes
// between stages, and the Decoder/Encoder contract external collaborators
// (codec/stdcodec, codec/vips) implement to turn files into that
// value and back (spec. §1, §3, §6.4).
package codec

import "fmt"

// Image is an opaque (width, height, pixels) triple. Pixels holds
// width*height 32-bit-per-pixel samples; ByteLen reports width*height*4.
// Width or height of zero means "unallocated". Realloc replaces the
// buffer and sets new dimensions atomically (spec. §3).
type Image struct {
	Width, Height int
	Pixels        []byte
}

// ByteLen returns the expected pixel-buffer length for the image's
// current dimensions.
func (img *Image) ByteLen() int {
	if img == nil {
		return 0
	}
	return img.Width * img.Height * 4
}

// Empty reports whether the image is unallocated (zero width or height).
func (img *Image) Empty() bool {
	return img == nil || img.Width == 0 || img.Height == 0
}

// Alloc returns a newly allocated, zeroed Image of the given dimensions.
func Alloc(width, height int) *Image {
	if width == 0 || height == 0 {
		return &Image{}
	}
	return &Image{Width: width, Height: height, Pixels: make([]byte, width*height*4)}
}

// Realloc replaces img's buffer and sets new dimensions atomically.
func (img *Image) Realloc(width, height int) {
	if width == 0 || height == 0 {
		img.Width, img.Height, img.Pixels = 0, 0, nil
		return
	}
	img.Width, img.Height = width, height
	img.Pixels = make([]byte, width*height*4)
}

// CopyFrom copies src's dimensions and pixels into img, reallocating if
// the dimensions differ.
func (img *Image) CopyFrom(src *Image) {
	if img.Width != src.Width || img.Height != src.Height {
		img.Realloc(src.Width, src.Height)
	}
	copy(img.Pixels, src.Pixels)
}

// Clone returns a deep copy of img.
func (img *Image) Clone() *Image {
	out := &Image{Width: img.Width, Height: img.Height}
	if len(img.Pixels) > 0 {
		out.Pixels = make([]byte, len(img.Pixels))
		copy(out.Pixels, img.Pixels)
	}
	return out
}

// Decoder reads an encoded file from disk into an Image. Implementations
// live under codec/stdcodec and codec/vips; the core never imports them
// directly (spec. §1 treats the codec as an external collaborator).
type Decoder interface {
	Decode(path string) (*Image, error)
}

// Encoder writes an Image to disk in some encoded format.
type Encoder interface {
	Encode(img *Image, path string) error
}

// Codec bundles a Decoder and Encoder pair, e.g. to pick a single
// collaborator implementation for both job_create (decode) and
// job_save/pipeline cache writes (encode).
type Codec interface {
	Decoder
	Encoder
}

// ErrDimensionMismatch describes two images whose dimensions differ.
// Nothing in this package returns it; CopyFrom reallocates instead.
type ErrDimensionMismatch struct {
	AW, AH, BW, BH int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: %dx%d vs %dx%d", e.AW, e.AH, e.BW, e.BH)
}
