package stage

import "github.com/Skryldev/oipipe/stageabi"

// TestModule is an in-process stageabi.Module double used by registry and
// pipeline tests that exercise the stage contract without loading a real
// .so file. ProcessFunc, when set, is called for every Process invocation;
// otherwise Process copies Src into Dst unchanged and reports StatusDone.
type TestModule struct {
	NameStr     string
	Args        []string
	Built       stageabi.BuildInfo
	SetupErr    error
	ProcessFunc func(in stageabi.Input) stageabi.Status

	SetupCalls   int
	ProcessCalls int
	CleanupCalls int
}

func (m *TestModule) Name() string                     { return m.NameStr }
func (m *TestModule) Description() string              { return "test module" }
func (m *TestModule) Author() string                   { return "test" }
func (m *TestModule) Year() string                     { return "2026" }
func (m *TestModule) BuiltAgainst() stageabi.BuildInfo { return m.Built }
func (m *TestModule) ValidArgs() []string              { return m.Args }

func (m *TestModule) Setup(verbose bool) error {
	m.SetupCalls++
	return m.SetupErr
}

func (m *TestModule) Process(in stageabi.Input) stageabi.Status {
	m.ProcessCalls++
	if m.ProcessFunc != nil {
		return m.ProcessFunc(in)
	}
	in.Dst.Realloc(in.Src.Width(), in.Src.Height())
	copy(in.Dst.Pixels(), in.Src.Pixels())
	return stageabi.StatusDone
}

func (m *TestModule) Cleanup() { m.CleanupCalls++ }

// TestLoader is a registry.Loader double that returns preconfigured
// modules keyed by module name, for use without a real dynamic loader.
type TestLoader struct {
	Modules map[string]stageabi.Module
}

func NewTestLoader() *TestLoader {
	return &TestLoader{Modules: make(map[string]stageabi.Module)}
}

func (l *TestLoader) Register(name string, m stageabi.Module) {
	l.Modules[name] = m
}

func (l *TestLoader) Load(directory, moduleName string) (stageabi.Module, error) {
	m, ok := l.Modules[moduleName]
	if !ok {
		return nil, &ErrModuleNotFound{Name: moduleName}
	}
	return m, nil
}

// ErrModuleNotFound is returned by TestLoader.Load for an unregistered
// module name.
type ErrModuleNotFound struct{ Name string }

func (e *ErrModuleNotFound) Error() string { return "stage: module not found: " + e.Name }
