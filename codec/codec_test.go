package codec

import "testing"

func TestAllocAndByteLen(t *testing.T) {
	img := Alloc(4, 3)
	if img.ByteLen() != 48 {
		t.Fatalf("expected byte len 48, got %d", img.ByteLen())
	}
	if img.Empty() {
		t.Fatal("expected non-empty image")
	}
}

func TestAllocZeroDimensionIsUnallocated(t *testing.T) {
	img := Alloc(0, 5)
	if !img.Empty() {
		t.Fatal("expected zero-width image to be empty")
	}
}

func TestReallocReplacesBufferAtomically(t *testing.T) {
	img := Alloc(2, 2)
	img.Pixels[0] = 0xFF
	img.Realloc(3, 3)
	if img.Width != 3 || img.Height != 3 {
		t.Fatalf("expected 3x3 after realloc, got %dx%d", img.Width, img.Height)
	}
	if len(img.Pixels) != 36 {
		t.Fatalf("expected fresh zeroed buffer of len 36, got %d", len(img.Pixels))
	}
	if img.Pixels[0] != 0 {
		t.Fatal("expected realloc to replace, not preserve, the buffer")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	img := Alloc(2, 2)
	img.Pixels[0] = 7
	clone := img.Clone()
	clone.Pixels[0] = 9
	if img.Pixels[0] != 7 {
		t.Fatal("expected clone to be an independent copy")
	}
}

func TestCopyFromReallocatesOnDimensionMismatch(t *testing.T) {
	dst := Alloc(2, 2)
	src := Alloc(4, 4)
	src.Pixels[0] = 42
	dst.CopyFrom(src)
	if dst.Width != 4 || dst.Height != 4 {
		t.Fatalf("expected dst resized to 4x4, got %dx%d", dst.Width, dst.Height)
	}
	if dst.Pixels[0] != 42 {
		t.Fatal("expected pixels copied from src")
	}
}
