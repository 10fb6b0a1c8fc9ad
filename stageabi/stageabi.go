// Package stageabi defines the contract a dynamically loaded processing
// stage module exposes to the core, per the stage module ABI (spec. §6.1).
package stageabi

import "fmt"

// Status is the return code a stage's process hook reports.
type Status int

const (
	// StatusDone signals the stage ran to completion and dst is valid.
	StatusDone Status = 2
	// StatusError signals the stage failed; the pipeline treats any
	// value other than StatusDone as a skip-this-stage failure.
	StatusError Status = -1
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// BuildInfo identifies the toolchain/ABI a module was built against. A
// module is refused at load time when its BuildInfo doesn't match the
// core's own (spec. §6.1).
type BuildInfo struct {
	ABI     int
	Debug   bool
	Version string
	Date    string
}

// Compatible reports whether module BuildInfo m may be loaded by a core
// built with BuildInfo core.
func Compatible(core, m BuildInfo) bool {
	return core.ABI == m.ABI && core.Debug == m.Debug
}

// Arg is one (name, value) pair from a stage instance's argument list.
type Arg struct {
	Name  string
	Value string
}

// Input is the packet a stage's Process hook receives (spec. §6.3).
// SetProgress may be called any number of times with a value in 0..=100;
// the core clamps values above 100 and invokes its own progress
// callbacks only when the clamped value actually changes.
type Input struct {
	Src         Image
	Dst         *MutableImage
	Args        []Arg
	SetProgress func(percent int)
}

// Image is a read-only view of a decoded (width, height, pixels) triple.
type Image interface {
	Width() int
	Height() int
	Pixels() []byte
}

// MutableImage is the output slot a stage sizes and fills. It starts
// empty (Width() == Height() == 0); the stage must call Realloc before
// writing pixels.
type MutableImage struct {
	width, height int
	pixels        []byte
}

// NewMutableImage returns an empty (unallocated) destination image.
func NewMutableImage() *MutableImage { return &MutableImage{} }

func (m *MutableImage) Width() int     { return m.width }
func (m *MutableImage) Height() int    { return m.height }
func (m *MutableImage) Pixels() []byte { return m.pixels }

// Realloc replaces the pixel buffer and sets new dimensions atomically,
// per the Image data model invariant in spec. §3: "reallocation replaces
// the buffer and sets new dimensions atomically".
func (m *MutableImage) Realloc(width, height int) {
	m.width = width
	m.height = height
	m.pixels = make([]byte, width*height*4)
}

// Module is the capability a loaded stage exposes: name/description,
// its declared valid argument names, and its three lifecycle hooks.
// This models the dynamic-dispatch ABI (name/description/process/setup/
// cleanup function pointers in the source) as a Go interface rather than
// raw function pointers, per the core's design notes.
type Module interface {
	Name() string
	Description() string
	Author() string
	Year() string
	BuiltAgainst() BuildInfo
	ValidArgs() []string

	// Setup is called once, immediately after load, with a read-only
	// snapshot of the process-wide verbose flag (see design notes on
	// verbose-flag propagation: the core passes a snapshot rather than a
	// mutable shared primitive).
	Setup(verbose bool) error
	// Process executes one stage invocation. It must not retain in
	// beyond the call; the core owns both in.Src and in.Dst.
	Process(in Input) Status
	// Cleanup releases any resources acquired by Setup/Process. Called
	// exactly once at registry teardown.
	Cleanup()
}
