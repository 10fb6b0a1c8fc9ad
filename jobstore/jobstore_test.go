package jobstore

import (
	"testing"

	"github.com/Skryldev/oipipe/codec"
	"github.com/Skryldev/oipipe/imgerr"
)

type stubDecoder struct {
	img *codec.Image
	err error
}

func (d *stubDecoder) Decode(path string) (*codec.Image, error) {
	return d.img, d.err
}

type stubEncoder struct {
	lastPath string
	err      error
}

func (e *stubEncoder) Encode(img *codec.Image, path string) error {
	e.lastPath = path
	return e.err
}

func TestCreateAssignsDistinctIDs(t *testing.T) {
	s := New(&stubDecoder{img: codec.Alloc(2, 2)})

	a, err := s.Create("a.png")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Create("b.png")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID() == b.ID() {
		t.Fatal("expected distinct job ids")
	}
	if a.Status() != Pending {
		t.Fatalf("expected new job Pending, got %v", a.Status())
	}
	if len(a.Snapshot()) != 0 {
		t.Fatal("expected empty snapshot for a never-run job")
	}
}

func TestCreatePropagatesDecodeFailure(t *testing.T) {
	s := New(&stubDecoder{err: imgerr.ErrZeroDimensions})
	if _, err := s.Create("bad.png"); err == nil {
		t.Fatal("expected decode error to propagate")
	}
}

func TestRegisterFindUnregister(t *testing.T) {
	s := New(&stubDecoder{img: codec.Alloc(2, 2)})
	job, _ := s.Create("a.png")

	if err := s.Register(job); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(job); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}

	got, ok := s.FindByID(job.ID())
	if !ok || got != job {
		t.Fatal("expected FindByID to return the registered job")
	}

	if err := s.Unregister(job.ID(), true); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.FindByID(job.ID()); ok {
		t.Fatal("expected job removed after Unregister")
	}
}

func TestUnregisterUnknownIsInvalidInput(t *testing.T) {
	s := New(&stubDecoder{img: codec.Alloc(2, 2)})
	if err := s.Unregister("missing", false); !imgerr.Is(err, imgerr.CategoryInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestSaveDelegatesToEncoder(t *testing.T) {
	s := New(&stubDecoder{img: codec.Alloc(2, 2)})
	job, _ := s.Create("a.png")

	enc := &stubEncoder{}
	if err := Save(job, enc, "out.png"); err != nil {
		t.Fatal(err)
	}
	if enc.lastPath != "out.png" {
		t.Fatalf("expected encode to receive out.png, got %q", enc.lastPath)
	}
}
