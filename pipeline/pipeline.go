// Package pipeline implements the pipeline engine (spec. §4.4): given a
// job and the stage registry, it computes the resume point from the
// job's snapshot, streams the working image through the remaining
// stages, writes each stage's output to that stage's cache, updates the
// job's snapshot, and fires progress callbacks.
//
// Adapted from the teacher's pipeline.Pipeline (hook-driven step runner
// with per-step timing) generalized from a fixed compiled step chain to
// the registry's dynamically loaded stage instances, and restructured
// around original_source/src/oipcore/oipcore/pipeline.c's pipeline_feed.
package pipeline

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Skryldev/oipipe/codec"
	"github.com/Skryldev/oipipe/imgerr"
	"github.com/Skryldev/oipipe/jobstore"
	"github.com/Skryldev/oipipe/registry"
	"github.com/Skryldev/oipipe/stageabi"
)

// Status is the engine's live progress descriptor, shared across all
// in-flight work given the single-threaded cooperative scheduling model
// (spec. §5).
type Status struct {
	Progress     int
	CurrentStage int
	CurrentJob   string
}

// StatusCallback observes progress changes. Callbacks run synchronously
// on the engine thread and must not call back into the engine.
type StatusCallback func(Status)

// StageObservation records one stage invocation's cost, for
// observability (spec. §4.4 step 3).
type StageObservation struct {
	StageIndex int
	StageUID   int64
	Elapsed    time.Duration
	Bytes      int
}

// Hook receives stage observations as the engine runs. Adapted from the
// teacher's core.Hook (BeforeStep/AfterStep), narrowed to the one event
// the engine actually emits.
type Hook interface {
	OnStage(job string, obs StageObservation, err error)
}

// Engine is the pipeline engine. It is not safe to call Feed
// concurrently with itself or with registry/job-store mutation; callers
// must serialise per spec. §5.
type Engine struct {
	mu sync.Mutex

	reg  *registry.Registry
	cdec codec.Decoder // used to load the cache prelude image
	cenc codec.Encoder // used to write each stage's cache output

	status    Status
	callbacks []StatusCallback
	hooks     []Hook
}

// New returns an Engine wired to reg for stage lookups and to cdec/cenc
// for reading/writing cache-file images. Codec is kept external per
// spec. §1; the engine only ever calls Decode/Encode.
func New(reg *registry.Registry, cdec codec.Decoder, cenc codec.Encoder) *Engine {
	return &Engine{reg: reg, cdec: cdec, cenc: cenc}
}

// AddHook registers an observability hook.
func (e *Engine) AddHook(h Hook) { e.hooks = append(e.hooks, h) }

// RegisterCallback appends fn to the set of status callbacks. Passing a
// nil fn fails (spec. §4.4 "registering a null/absent reference fails").
func (e *Engine) RegisterCallback(fn StatusCallback) error {
	if fn == nil {
		return imgerr.New(imgerr.CategoryInvalidInput, "pipeline.register_callback", imgerr.ErrNilCallback)
	}
	e.mu.Lock()
	e.callbacks = append(e.callbacks, fn)
	e.mu.Unlock()
	return nil
}

// UnregisterCallback removes every callback previously registered with
// this exact fn, compared by underlying function pointer since Go func
// values are not otherwise comparable (spec. §4.4 "unregister_callback
// removes all matching entries").
func (e *Engine) UnregisterCallback(fn StatusCallback) {
	if fn == nil {
		return
	}
	target := reflect.ValueOf(fn).Pointer()
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.callbacks[:0]
	for _, cb := range e.callbacks {
		if reflect.ValueOf(cb).Pointer() != target {
			kept = append(kept, cb)
		}
	}
	e.callbacks = kept
}

func (e *Engine) setProgress(jobID string, stageIdx, percent int) {
	if percent > 100 {
		percent = 100
	}
	e.mu.Lock()
	changed := e.status.Progress != percent || e.status.CurrentStage != stageIdx || e.status.CurrentJob != jobID
	e.status = Status{Progress: percent, CurrentStage: stageIdx, CurrentJob: jobID}
	cbs := make([]StatusCallback, len(e.callbacks))
	copy(cbs, e.callbacks)
	e.mu.Unlock()

	if !changed {
		return
	}
	snapshot := e.Status()
	for _, cb := range cbs {
		cb(snapshot)
	}
}

// Status returns the engine's current progress descriptor.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// firstChanged computes the resume point (spec. §4.4 step 1) using
// earliest-mismatch semantics: the first index in the common prefix
// where uid, arg_rev, or a cache miss diverges. This deliberately
// diverges from the "last mismatch wins" loop in
// original_source/src/oipcore/oipcore/pipeline.c — see DESIGN.md.
func firstChanged(prev []registry.SnapshotEntry, cur []registry.SnapshotEntry, stages []*registry.Stage, jobID string) int {
	m := len(prev)
	if len(cur) < m {
		m = len(cur)
	}
	first := m
	for i := 0; i < m; i++ {
		if cur[i].UID != prev[i].UID || cur[i].ArgRev != prev[i].ArgRev || !stages[i].Cache().Has(jobID) {
			first = i
			break
		}
	}
	return first
}

// Feed runs job through the pipeline, starting from its computed resume
// point, and updates its status and snapshot (spec. §4.4).
func (e *Engine) Feed(job *jobstore.Job) error {
	n := e.reg.Count()
	stages := make([]*registry.Stage, n)
	for i := 0; i < n; i++ {
		s, err := e.reg.Get(i)
		if err != nil {
			return err
		}
		stages[i] = s
	}

	prev := job.Snapshot()
	cur := e.reg.Snapshot()

	var first int
	if len(prev) == 0 {
		first = 0
	} else {
		first = firstChanged(prev, cur, stages, job.ID())
	}

	// Cache prelude (step 2).
	var working *codec.Image
	if first > 0 {
		path, ok := stages[first-1].Cache().PathOf(job.ID())
		if !ok {
			jobstore.MarkFail(job)
			return imgerr.New(imgerr.CategoryConsistencyViolation, "pipeline.feed.prelude", imgerr.ErrCacheMiss)
		}
		img, err := e.cdec.Decode(path)
		if err != nil {
			jobstore.MarkFail(job)
			return imgerr.Wrap(imgerr.CategoryResourceFailure, "pipeline.feed.prelude", err)
		}
		working = img
	} else {
		working = job.SrcImg().Clone()
	}

	total := len(stages)
	for i := first; i < total; i++ {
		e.setProgress(job.ID(), i, percentOf(i, total))

		dst := stageabi.NewMutableImage()
		in := stageabi.Input{
			Src:  imageView{working},
			Dst:  dst,
			Args: stages[i].Args(),
			SetProgress: func(u int) {
				e.setProgress(job.ID(), i, u)
			},
		}

		start := time.Now()
		status, err := e.reg.Feed(i, in)
		elapsed := time.Since(start)

		stageErr := err
		if stageErr == nil && status != stageabi.StatusDone {
			stageErr = imgerr.New(imgerr.CategoryStageFailure, "pipeline.feed.stage", fmt.Errorf("stage %d returned %s", i, status))
		}
		obsBytes := 0
		if stageErr == nil {
			obsBytes = len(dst.Pixels())
		}
		e.notifyHooks(job.ID(), StageObservation{StageIndex: i, StageUID: stages[i].UID(), Elapsed: elapsed, Bytes: obsBytes}, stageErr)

		if stageErr != nil {
			// Partial-failure policy: skip this stage, keep the same
			// input, continue to the next one (spec. §4.4 step 3, S6).
			continue
		}

		out := &codec.Image{Width: dst.Width(), Height: dst.Height(), Pixels: dst.Pixels()}

		if err := e.writeCacheEntry(stages[i], job.ID(), out); err != nil {
			jobstore.MarkFail(job)
			return err
		}

		working = out
	}

	// Finalise (step 4).
	job.ResultImg().CopyFrom(working)
	jobstore.SnapshotUpdate(job, e.reg)
	e.setProgress(job.ID(), total, 100)
	return nil
}

// writeCacheEntry registers job.ID() in stage's cache (auto-evicting if
// full) and writes img to the assigned path. A write failure unregisters
// the index entry to restore the consistency invariant (spec. §4.1).
func (e *Engine) writeCacheEntry(stage *registry.Stage, jobID string, img *codec.Image) error {
	c := stage.Cache()
	entry, err := c.Register(jobID, true)
	if err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "pipeline.feed.cache_register", err)
	}
	if err := e.cenc.Encode(img, entry.Path); err != nil {
		_ = c.Unregister(jobID)
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "pipeline.feed.cache_write", err)
	}
	return nil
}

func (e *Engine) notifyHooks(jobID string, obs StageObservation, err error) {
	for _, h := range e.hooks {
		h.OnStage(jobID, obs, err)
	}
}

func percentOf(i, total int) int {
	if total == 0 {
		return 100
	}
	return i * 100 / total
}

// imageView adapts *codec.Image to stageabi.Image.
type imageView struct{ img *codec.Image }

func (v imageView) Width() int     { return v.img.Width }
func (v imageView) Height() int    { return v.img.Height }
func (v imageView) Pixels() []byte { return v.img.Pixels }
