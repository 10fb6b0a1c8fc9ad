package registry

import (
	"testing"

	"github.com/Skryldev/oipipe/imgerr"
	"github.com/Skryldev/oipipe/stage"
	"github.com/Skryldev/oipipe/stageabi"
)

func newTestRegistry(t *testing.T) (*Registry, *stage.TestLoader) {
	t.Helper()
	loader := stage.NewTestLoader()
	return New(loader, t.TempDir(), 10), loader
}

func TestLoadAssignsMonotonicUIDs(t *testing.T) {
	r, loader := newTestRegistry(t)
	loader.Register("blur", &stage.TestModule{NameStr: "blur"})
	loader.Register("sharpen", &stage.TestModule{NameStr: "sharpen"})

	a, err := r.Load("/stages", "blur", false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Load("/stages", "sharpen", false)
	if err != nil {
		t.Fatal(err)
	}

	// Property 4/5: UID uniqueness and strictly increasing order.
	if a.UID() == b.UID() {
		t.Fatal("expected distinct UIDs")
	}
	if !(a.UID() < b.UID()) {
		t.Fatalf("expected uid ordering a<b, got a=%d b=%d", a.UID(), b.UID())
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 stages, got %d", r.Count())
	}
}

func TestLoadFailureLeavesNoPartialRegistration(t *testing.T) {
	r, loader := newTestRegistry(t)
	loader.Register("broken", &stage.TestModule{NameStr: "broken", SetupErr: imgerr.ErrNilCallback})

	if _, err := r.Load("/stages", "broken", false); err == nil {
		t.Fatal("expected setup failure to propagate")
	}
	if r.Count() != 0 {
		t.Fatalf("expected no partial registration, got count=%d", r.Count())
	}
}

func TestSetArgRejectsUnknownName(t *testing.T) {
	r, loader := newTestRegistry(t)
	loader.Register("blur", &stage.TestModule{NameStr: "blur", Args: []string{"radius"}})
	if _, err := r.Load("/stages", "blur", false); err != nil {
		t.Fatal(err)
	}

	if err := r.SetArg(0, "bogus", "1"); !imgerr.Is(err, imgerr.CategoryInvalidInput) {
		t.Fatalf("expected InvalidInput for unknown arg, got %v", err)
	}
}

func TestSetArgBumpsRevByOnePerMutation(t *testing.T) {
	r, loader := newTestRegistry(t)
	loader.Register("blur", &stage.TestModule{NameStr: "blur", Args: []string{"radius"}})
	s, _ := r.Load("/stages", "blur", false)

	if s.ArgRev() != 0 {
		t.Fatalf("expected initial arg_rev 0, got %d", s.ArgRev())
	}
	if err := r.SetArg(0, "radius", "3"); err != nil {
		t.Fatal(err)
	}
	if s.ArgRev() != 1 {
		t.Fatalf("expected arg_rev 1 after first mutation, got %d", s.ArgRev())
	}
	// Property 3: replacing the same key still bumps by exactly 1.
	if err := r.SetArg(0, "radius", "5"); err != nil {
		t.Fatal(err)
	}
	if s.ArgRev() != 2 {
		t.Fatalf("expected arg_rev 2 after second mutation, got %d", s.ArgRev())
	}
	args := s.Args()
	if len(args) != 1 || args[0].Value != "5" {
		t.Fatalf("expected single radius=5 entry, got %+v", args)
	}
}

func TestGetOutOfRangeIsInvalidInput(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Get(0); !imgerr.Is(err, imgerr.CategoryInvalidInput) {
		t.Fatalf("expected InvalidInput for empty registry, got %v", err)
	}
}

func TestFeedDelegatesToModule(t *testing.T) {
	r, loader := newTestRegistry(t)
	tm := &stage.TestModule{NameStr: "blur"}
	loader.Register("blur", tm)
	if _, err := r.Load("/stages", "blur", false); err != nil {
		t.Fatal(err)
	}

	in := stageabi.Input{
		Src: dummyImage{w: 2, h: 2, px: make([]byte, 16)},
		Dst: stageabi.NewMutableImage(),
	}
	status, err := r.Feed(0, in)
	if err != nil {
		t.Fatal(err)
	}
	if status != stageabi.StatusDone {
		t.Fatalf("expected StatusDone, got %v", status)
	}
	if tm.ProcessCalls != 1 {
		t.Fatalf("expected module Process called once, got %d", tm.ProcessCalls)
	}
}

func TestCleanupRunsEachModuleOnce(t *testing.T) {
	r, loader := newTestRegistry(t)
	a := &stage.TestModule{NameStr: "a"}
	b := &stage.TestModule{NameStr: "b"}
	loader.Register("a", a)
	loader.Register("b", b)
	r.Load("/stages", "a", false)
	r.Load("/stages", "b", false)

	if err := r.Cleanup(false); err != nil {
		t.Fatal(err)
	}
	if a.CleanupCalls != 1 || b.CleanupCalls != 1 {
		t.Fatalf("expected cleanup called once each, got a=%d b=%d", a.CleanupCalls, b.CleanupCalls)
	}
	if r.Count() != 0 {
		t.Fatalf("expected registry emptied after cleanup, got %d", r.Count())
	}
}

type dummyImage struct {
	w, h int
	px   []byte
}

func (d dummyImage) Width() int     { return d.w }
func (d dummyImage) Height() int    { return d.h }
func (d dummyImage) Pixels() []byte { return d.px }
