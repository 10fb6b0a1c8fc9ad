// Package obs provides the logging and metrics collaborators (spec. §1
// names logging as a thin external surface layer). Adapted from the
// teacher's hooks package: an slog-backed Logger for library code and a
// logrus-backed Logger for the CLI surface (the lazydocker-style
// structured logging this corpus reaches for at the command-line edge).
package obs

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Skryldev/oipipe/pipeline"
)

// Logger is the structured-logging contract LoggingHook and the CLI
// surface log through. The core packages (cache, registry, jobstore,
// pipeline) do not log.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// SlogLogger wraps the standard library slog.Logger.
type SlogLogger struct{ log *slog.Logger }

func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...any) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...any)  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...any)  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...any) { s.log.Error(msg, fields...) }

// LogrusLogger wraps a logrus.FieldLogger for the CLI surface, matching
// the CLI-edge logging library this corpus' lazydocker tool uses.
type LogrusLogger struct{ log logrus.FieldLogger }

func NewLogrusLogger(l logrus.FieldLogger) *LogrusLogger { return &LogrusLogger{log: l} }

func (l *LogrusLogger) Debug(msg string, fields ...any) { l.fields(fields).Debug(msg) }
func (l *LogrusLogger) Info(msg string, fields ...any)  { l.fields(fields).Info(msg) }
func (l *LogrusLogger) Warn(msg string, fields ...any)  { l.fields(fields).Warn(msg) }
func (l *LogrusLogger) Error(msg string, fields ...any) { l.fields(fields).Error(msg) }

func (l *LogrusLogger) fields(kv []any) logrus.FieldLogger {
	entry := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		entry[key] = kv[i+1]
	}
	if len(entry) == 0 {
		return l.log
	}
	return l.log.WithFields(entry)
}

// LoggingHook logs each stage invocation observed by the pipeline
// engine, adapted from the teacher's LoggingHook (before/after-step
// pair) narrowed to the engine's single OnStage event.
type LoggingHook struct{ logger Logger }

func NewLoggingHook(l Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) OnStage(job string, obs pipeline.StageObservation, err error) {
	if err != nil {
		h.logger.Warn("pipeline.stage.skip",
			"job", job,
			"stage_index", obs.StageIndex,
			"stage_uid", obs.StageUID,
			"duration_ms", obs.Elapsed.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	h.logger.Debug("pipeline.stage.done",
		"job", job,
		"stage_index", obs.StageIndex,
		"stage_uid", obs.StageUID,
		"duration_ms", obs.Elapsed.Milliseconds(),
	)
}

// MetricsSnapshot is an immutable point-in-time copy of accumulated
// metrics, adapted from the teacher's hooks.MetricsSnapshot.
type MetricsSnapshot struct {
	StageDurationsMs map[int64]int64
	StageCalls       map[int64]int64
	StageErrors      map[int64]int64
	TotalBytes       int64
}

// InMemoryMetrics accumulates per-stage timing and error counts,
// keyed by stage UID rather than step name since stages are dynamically
// loaded and may share a module name across instances.
type InMemoryMetrics struct {
	mu sync.RWMutex

	durationsMs map[int64]int64
	calls       map[int64]int64
	errors      map[int64]int64

	totalBytes int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		durationsMs: make(map[int64]int64),
		calls:       make(map[int64]int64),
		errors:      make(map[int64]int64),
	}
}

func (m *InMemoryMetrics) record(obs pipeline.StageObservation, err error) {
	m.mu.Lock()
	m.durationsMs[obs.StageUID] += obs.Elapsed.Milliseconds()
	m.calls[obs.StageUID]++
	if err != nil {
		m.errors[obs.StageUID]++
	}
	m.mu.Unlock()
	if obs.Bytes > 0 {
		atomic.AddInt64(&m.totalBytes, int64(obs.Bytes))
	}
}

// Snapshot returns a copy of the currently accumulated metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		StageDurationsMs: make(map[int64]int64, len(m.durationsMs)),
		StageCalls:       make(map[int64]int64, len(m.calls)),
		StageErrors:      make(map[int64]int64, len(m.errors)),
		TotalBytes:       atomic.LoadInt64(&m.totalBytes),
	}
	for k, v := range m.durationsMs {
		snap.StageDurationsMs[k] = v
	}
	for k, v := range m.calls {
		snap.StageCalls[k] = v
	}
	for k, v := range m.errors {
		snap.StageErrors[k] = v
	}
	return snap
}

// MetricsHook feeds pipeline stage observations into an InMemoryMetrics
// collector.
type MetricsHook struct{ metrics *InMemoryMetrics }

func NewMetricsHook(m *InMemoryMetrics) *MetricsHook { return &MetricsHook{metrics: m} }

func (h *MetricsHook) OnStage(job string, obs pipeline.StageObservation, err error) {
	h.metrics.record(obs, err)
}
