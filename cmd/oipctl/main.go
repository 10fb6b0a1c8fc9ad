// Command oipctl is the CLI surface for the pipeline core: load stage
// modules, submit jobs, run the pipeline, and inspect caches.
//
// CLI option parsing follows the teacher corpus's lazydocker tool, which
// uses integrii/flaggy; structured logging at this surface follows
// lazydocker's use of sirupsen/logrus (spec. §6.6 names "verbose" and
// "preserve cache on shutdown" as the only flags the core relies on; the
// rest of this surface is this module's own addition).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/integrii/flaggy"
	"github.com/sirupsen/logrus"

	"github.com/Skryldev/oipipe"
	"github.com/Skryldev/oipipe/codec/stdcodec"
	"github.com/Skryldev/oipipe/imgconfig"
	"github.com/Skryldev/oipipe/obs"
	"github.com/Skryldev/oipipe/source"
)

var version = "dev"

func main() {
	var (
		verbose       bool
		preserveCache bool
		configPath    string
		stageDir      string
		sourceRoot    string
		dumpCache     bool
		stageNames    []string
		jobPaths      []string
	)

	flaggy.SetName("oipctl")
	flaggy.SetDescription("Run an image-processing pipeline with a per-stage result cache")
	flaggy.Bool(&verbose, "v", "verbose", "Propagate verbose=true into every loaded stage")
	flaggy.Bool(&preserveCache, "p", "preserve-cache", "Leave stage caches on disk at shutdown")
	flaggy.String(&configPath, "c", "config", "Path to a cache_root/cache_default_max_files config file")
	flaggy.String(&stageDir, "s", "stage-dir", "Directory to resolve stage module .so files from")
	flaggy.String(&sourceRoot, "r", "source-root", "Directory job source locators are resolved relative to")
	flaggy.Bool(&dumpCache, "", "dump-cache", "Dump every stage's cache index and exit")
	flaggy.StringSlice(&stageNames, "l", "load", "Stage module name to load, in pipeline order (repeatable)")
	flaggy.StringSlice(&jobPaths, "j", "job", "Source image path, relative to --source-root, to submit as a job (repeatable); URI locators such as s3:// are rejected")
	flaggy.SetVersion(version)
	flaggy.Parse()

	logger := newLogger(verbose)

	cfg := imgconfig.Default()
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			logger.Error("oipctl.config.read", "path", configPath, "error", err.Error())
			os.Exit(1)
		}
		parsed, err := imgconfig.Parse(string(raw))
		if err != nil {
			logger.Error("oipctl.config.parse", "path", configPath, "error", err.Error())
			os.Exit(1)
		}
		cfg = parsed
	}
	if err := imgconfig.Validate(cfg); err != nil {
		logger.Error("oipctl.config.invalid", "error", err.Error())
		os.Exit(1)
	}
	if sourceRoot == "" {
		sourceRoot = "."
	}

	core := oipipe.New(oipipe.Options{
		Config:        cfg,
		Codec:         stdcodec.NewPNG(),
		Source:        source.NewLocal(sourceRoot),
		Verbose:       verbose,
		PreserveCache: preserveCache,
	})
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("oipctl.shutdown", "error", err.Error())
		}
	}()

	metrics := obs.NewInMemoryMetrics()
	core.AddHook(obs.NewLoggingHook(logger))
	core.AddHook(obs.NewMetricsHook(metrics))

	for _, name := range stageNames {
		if _, err := core.LoadStage(stageDir, name); err != nil {
			logger.Error("oipctl.load_stage", "name", name, "error", err.Error())
			os.Exit(1)
		}
		logger.Info("oipctl.load_stage.ok", "name", name)
	}

	if dumpCache {
		for i := 0; i < core.Registry.Count(); i++ {
			stage, err := core.Registry.Get(i)
			if err != nil {
				continue
			}
			stage.Cache().Dump(os.Stdout)
		}
		return
	}

	ctx := context.Background()
	for _, locator := range jobPaths {
		job, err := core.SubmitJob(ctx, locator)
		if err != nil {
			logger.Error("oipctl.submit", "locator", locator, "error", err.Error())
			continue
		}
		if err := core.RunJob(job); err != nil {
			logger.Error("oipctl.run", "job", job.ID(), "error", err.Error())
			continue
		}
		fmt.Printf("job %s: %s (source %s)\n", job.ID(), job.Status(), locator)
	}
}

func newLogger(verbose bool) obs.Logger {
	l := logrus.New()
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return obs.NewLogrusLogger(l)
}
