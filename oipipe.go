// Package oipipe is the top-level facade wiring the cache store, stage
// registry, job store, and pipeline engine into one entry point, the
// way the teacher's imageprocessor.Processor wires its registry and
// inner core together.
package oipipe

import (
	"context"

	"github.com/Skryldev/oipipe/codec"
	"github.com/Skryldev/oipipe/imgconfig"
	"github.com/Skryldev/oipipe/jobstore"
	"github.com/Skryldev/oipipe/pipeline"
	"github.com/Skryldev/oipipe/registry"
	"github.com/Skryldev/oipipe/source"
	"github.com/Skryldev/oipipe/stage"
	"github.com/Skryldev/oipipe/stageabi"
)

// CoreBuildInfo is this core's own ABI/debug flavour, checked against
// every loaded stage module (spec. §6.1).
var CoreBuildInfo = stageabi.BuildInfo{ABI: 1, Debug: false, Version: "1.0.0"}

// Options configures a Core at construction time.
type Options struct {
	Config        imgconfig.Config
	Codec         codec.Codec     // used both to decode jobs and to read/write cache files
	Source        source.Resolver // resolves a job locator to a local path; defaults to source.Local rooted at "."
	Verbose       bool
	PreserveCache bool // consumed only at Close, per spec. §6.6/§9
}

// DefaultOptions returns sane defaults; Codec must still be set by the
// caller since the core treats it as an external collaborator.
func DefaultOptions() Options {
	return Options{Config: imgconfig.Default(), Source: source.NewLocal(".")}
}

// Core bundles the four components (spec. §2) behind one entry point:
// the cache root (owned indirectly via Registry), the stage registry,
// the job store, and the pipeline engine.
type Core struct {
	opts Options

	Loader   *stage.Loader
	Registry *registry.Registry
	Jobs     *jobstore.Store
	Engine   *pipeline.Engine
}

// New constructs a Core from opts. The stage registry is created empty;
// call LoadStage to populate it.
func New(opts Options) *Core {
	if opts.Codec == nil {
		panic("oipipe: Options.Codec must not be nil")
	}
	if opts.Source == nil {
		opts.Source = source.NewLocal(".")
	}
	loader := stage.NewLoader(CoreBuildInfo)
	reg := registry.New(loader, opts.Config.CacheRoot, opts.Config.CacheDefaultMaxFiles)
	jobs := jobstore.New(opts.Codec)
	engine := pipeline.New(reg, opts.Codec, opts.Codec)

	return &Core{
		opts:     opts,
		Loader:   loader,
		Registry: reg,
		Jobs:     jobs,
		Engine:   engine,
	}
}

// LoadStage loads moduleName from directory and appends it to the stage
// registry, propagating the process-wide verbose flag at setup time
// (spec. §9's read-only-snapshot resolution of verbose-flag
// propagation).
func (c *Core) LoadStage(directory, moduleName string) (*registry.Stage, error) {
	return c.Registry.Load(directory, moduleName, c.opts.Verbose)
}

// SubmitJob resolves locator (a local path, or an s3://bucket/key URI when
// Options.Source is an S3 resolver) to a local file, loads it as a new
// job, registers it, and returns it without running the pipeline. Call
// RunJob to process it.
func (c *Core) SubmitJob(ctx context.Context, locator string) (*jobstore.Job, error) {
	path, cleanup, err := c.opts.Source.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	job, err := c.Jobs.Create(path)
	if err != nil {
		return nil, err
	}
	if err := c.Jobs.Register(job); err != nil {
		return nil, err
	}
	return job, nil
}

// RunJob feeds job through the pipeline engine.
func (c *Core) RunJob(job *jobstore.Job) error {
	return c.Engine.Feed(job)
}

// SaveJob writes job's result image to path.
func (c *Core) SaveJob(job *jobstore.Job, path string) error {
	return jobstore.Save(job, c.opts.Codec, path)
}

// AddHook registers an observability hook on the pipeline engine.
func (c *Core) AddHook(h pipeline.Hook) { c.Engine.AddHook(h) }

// RegisterStatusCallback registers a progress callback on the pipeline
// engine.
func (c *Core) RegisterStatusCallback(fn pipeline.StatusCallback) error {
	return c.Engine.RegisterCallback(fn)
}

// Close tears down the stage registry, honouring the configured
// preserve-cache flag (spec. §5 shutdown, §9).
func (c *Core) Close() error {
	return c.Registry.Cleanup(c.opts.PreserveCache)
}
