// Package registry implements the stage registry (spec. §4.2): the
// ordered list of loaded stage instances, each with a stable UID, an
// owned argument list with a monotonic revision counter, and an
// exclusive cache.
//
// Grounded in original_source/src/oipcore/oipcore/plugin.c (plugin_load,
// plugin_gen_uid_int, the args ptrarray, verbose-flag propagation).
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/oipipe/cache"
	"github.com/Skryldev/oipipe/imgerr"
	"github.com/Skryldev/oipipe/stageabi"
)

// Loader resolves a module file under directory and returns a ready-to-use
// stageabi.Module, performing the ABI/debug compatibility check. This is
// the stage/ package's Loader type, abstracted here to keep registry free
// of a dependency on the concrete dynamic-loading mechanism.
type Loader interface {
	Load(directory, moduleName string) (stageabi.Module, error)
}

// Stage is one configured instance of a loaded module.
type Stage struct {
	mu sync.Mutex

	uid    int64
	module stageabi.Module
	args   []stageabi.Arg
	argRev int64
	cache  *cache.Cache
}

// UID returns the stage's process-wide unique identifier.
func (s *Stage) UID() int64 { return s.uid }

// Name returns the underlying module's name.
func (s *Stage) Name() string { return s.module.Name() }

// ArgRev returns the current argument-revision counter.
func (s *Stage) ArgRev() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.argRev
}

// Args returns a copy of the stage's current argument list, in
// insertion order.
func (s *Stage) Args() []stageabi.Arg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stageabi.Arg, len(s.args))
	copy(out, s.args)
	return out
}

// Cache returns the stage's exclusive Cache.
func (s *Stage) Cache() *cache.Cache { return s.cache }

// HasArg reports whether name is currently set on this stage.
func (s *Stage) HasArg(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(name) != -1
}

func (s *Stage) indexOfLocked(name string) int {
	for i := range s.args {
		if s.args[i].Name == name {
			return i
		}
	}
	return -1
}

func (s *Stage) validArg(name string) bool {
	for _, v := range s.module.ValidArgs() {
		if v == name {
			return true
		}
	}
	return false
}

// Registry holds the ordered, append-only list of stage instances, the
// global cache root and default capacity they're created with, and the
// loader collaborator used to resolve module files.
type Registry struct {
	mu sync.Mutex

	loader          Loader
	cacheRoot       string
	defaultMaxFiles int

	stages  []*Stage
	nextUID int64 // atomic counter, monotonic, never reused
}

// New returns an empty Registry. cacheRoot and defaultMaxFiles come from
// the configuration collaborator's cache_root / cache_default_max_files
// keys (spec. §6.4).
func New(loader Loader, cacheRoot string, defaultMaxFiles int) *Registry {
	return &Registry{
		loader:          loader,
		cacheRoot:       cacheRoot,
		defaultMaxFiles: defaultMaxFiles,
	}
}

// Load resolves moduleName under directory, verifies ABI compatibility,
// assigns a fresh UID, creates the instance's cache, appends it to the
// stage list, and runs the module's setup hook. Any failure before setup
// leaves no partial registration (spec. §4.2).
func (r *Registry) Load(directory, moduleName string, verbose bool) (*Stage, error) {
	module, err := r.loader.Load(directory, moduleName)
	if err != nil {
		if imgerr.Is(err, imgerr.CategoryAbiMismatch) {
			return nil, err
		}
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "registry.load", err)
	}

	uid := atomic.AddInt64(&r.nextUID, 1) - 1

	cacheName := fmt.Sprintf("%s-%d", module.Name(), uid)
	c, err := cache.Create(r.cacheRoot, cacheName, r.defaultMaxFiles)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "registry.load.cache", err)
	}

	stage := &Stage{
		uid:    uid,
		module: module,
		cache:  c,
	}

	if err := module.Setup(verbose); err != nil {
		// No partial registration: the cache directory created above is
		// harmless to leave (cache_create is idempotent on re-adoption),
		// but the stage instance itself is never appended.
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "registry.load.setup", err)
	}

	r.mu.Lock()
	r.stages = append(r.stages, stage)
	r.mu.Unlock()

	return stage, nil
}

// SetArg mutates stages[index]'s argument list. name must be one of the
// stage's declared valid argument names. Replacing an existing value or
// appending a new one both increment arg_rev by exactly one (spec. §4.2,
// testable property 3).
func (r *Registry) SetArg(index int, name, value string) error {
	stage, err := r.at(index)
	if err != nil {
		return err
	}

	stage.mu.Lock()
	defer stage.mu.Unlock()

	if !stage.validArg(name) {
		return imgerr.New(imgerr.CategoryInvalidInput, "registry.set_arg", imgerr.ErrUnknownArg)
	}

	if idx := stage.indexOfLocked(name); idx != -1 {
		stage.args[idx].Value = value
	} else {
		stage.args = append(stage.args, stageabi.Arg{Name: name, Value: value})
	}
	stage.argRev++
	return nil
}

// Count returns the number of registered stage instances.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stages)
}

// Get returns the stage at index, in submission order.
func (r *Registry) Get(index int) (*Stage, error) {
	return r.at(index)
}

// HasArg reports whether stages[index] currently has name set.
func (r *Registry) HasArg(index int, name string) (bool, error) {
	stage, err := r.at(index)
	if err != nil {
		return false, err
	}
	return stage.HasArg(name), nil
}

// Feed delegates to stages[index]'s module Process hook.
func (r *Registry) Feed(index int, in stageabi.Input) (stageabi.Status, error) {
	stage, err := r.at(index)
	if err != nil {
		return stageabi.StatusError, err
	}
	return stage.module.Process(in), nil
}

// SnapshotEntry is one stage's (uid, arg_rev) pair.
type SnapshotEntry struct {
	UID    int64
	ArgRev int64
}

// Snapshot returns the (uid, arg_rev) pair for every stage, in order —
// the vector the pipeline engine compares against a job's snapshot.
func (r *Registry) Snapshot() []SnapshotEntry {
	r.mu.Lock()
	stages := make([]*Stage, len(r.stages))
	copy(stages, r.stages)
	r.mu.Unlock()

	out := make([]SnapshotEntry, len(stages))
	for i, s := range stages {
		out[i] = SnapshotEntry{UID: s.UID(), ArgRev: s.ArgRev()}
	}
	return out
}

// Cleanup tears down every stage: runs its module's Cleanup hook and
// destroys its cache, honouring preserveCache (spec. §4.2, §9).
func (r *Registry) Cleanup(preserveCache bool) error {
	r.mu.Lock()
	stages := r.stages
	r.stages = nil
	r.mu.Unlock()

	var firstErr error
	for _, s := range stages {
		s.module.Cleanup()
		if err := s.cache.Destroy(!preserveCache); err != nil && firstErr == nil {
			firstErr = imgerr.Wrap(imgerr.CategoryResourceFailure, "registry.cleanup", err)
		}
	}
	return firstErr
}

func (r *Registry) at(index int) (*Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.stages) {
		return nil, imgerr.New(imgerr.CategoryInvalidInput, "registry.at", imgerr.ErrUnknownStage)
	}
	return r.stages[index], nil
}
