// Package stage resolves stage modules at runtime. A module is a Go
// plugin (.so) built with `go build -buildmode=plugin` exporting a
// symbol named "{module_name}_plugin_info" of type func() stageabi.Module
// (spec. §6.1). This is the loader collaborator named, but deliberately
// left unspecified, in spec. §1.
//
// Grounded in original_source/src/oipcore/oipcore/plugin.c's plugin_load:
// dlopen the file, dlsym the info symbol, compare BuildInfo, refuse on
// mismatch.
package stage

import (
	"fmt"
	"path/filepath"
	"plugin"

	"github.com/Skryldev/oipipe/imgerr"
	"github.com/Skryldev/oipipe/stageabi"
)

// InfoFunc is the signature a stage module's exported symbol must have.
type InfoFunc func() stageabi.Module

// Loader resolves and ABI-checks stage modules from .so files under a
// directory, implementing registry.Loader.
type Loader struct {
	core stageabi.BuildInfo
}

// NewLoader returns a Loader that refuses modules not built against
// core's ABI/debug flavour.
func NewLoader(core stageabi.BuildInfo) *Loader {
	return &Loader{core: core}
}

// Load opens "{directory}/{moduleName}.so", resolves its
// "{moduleName}_plugin_info" symbol, and checks ABI compatibility before
// returning the module (spec. §4.2, §6.1).
func (l *Loader) Load(directory, moduleName string) (stageabi.Module, error) {
	path := filepath.Join(directory, moduleName+".so")
	p, err := plugin.Open(path)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "stage.load.open", err)
	}

	symName := moduleName + "_plugin_info"
	sym, err := p.Lookup(symName)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "stage.load.lookup", err)
	}

	infoFn, ok := sym.(func() stageabi.Module)
	if !ok {
		return nil, imgerr.New(imgerr.CategoryAbiMismatch, "stage.load.symbol", fmt.Errorf("symbol %q has unexpected signature", symName))
	}

	module := infoFn()
	if !stageabi.Compatible(l.core, module.BuiltAgainst()) {
		return nil, imgerr.New(imgerr.CategoryAbiMismatch, "stage.load.abi", fmt.Errorf("module %q built against incompatible ABI/debug flavour", moduleName))
	}

	return module, nil
}
