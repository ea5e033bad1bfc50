// CLAUDE:SUMMARY Error collector for structural probes: runs, failures, panic recovery and a health score.
// Package probe records the outcome of the structural checks a parser runs
// against a candidate element. A failing or panicking check never aborts the
// parse: it is counted, and the parse continues with a zero value in place
// of the missing piece. The ratio of clean checks becomes the record's score.
package probe

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrMissing marks a structural absence: the element a probe looks for is
// not there.
var ErrMissing = errors.New("not found")

// Missing returns an ErrMissing error naming what was looked for.
func Missing(what string) error {
	return fmt.Errorf("%s: %w", what, ErrMissing)
}

// Failure is one failed probe.
type Failure struct {
	Probe   string `json:"probe"`
	Message string `json:"message"`
}

func (f Failure) String() string { return f.Probe + ": " + f.Message }

// Collector accumulates probe outcomes for one parse. It is not safe for
// concurrent use; parsers create one per call.
type Collector struct {
	name     string
	runs     int
	failures []Failure
}

// NewCollector returns an empty collector. name labels log output.
func NewCollector(name string) *Collector {
	return &Collector{name: name}
}

// Name returns the collector's label.
func (c *Collector) Name() string { return c.name }

// Run executes fn as the probe called name and returns its value. If fn
// returns an error or panics, the failure is recorded and the zero value of
// T is returned.
func Run[T any](c *Collector, name string, fn func() (T, error)) (v T) {
	c.runs++
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			c.fail(name, fmt.Sprintf("panic: %v", r))
		}
	}()
	out, err := fn()
	if err != nil {
		c.fail(name, err.Error())
		var zero T
		return zero
	}
	return out
}

// Check runs a probe that produces no value. It reports whether the probe
// passed.
func (c *Collector) Check(name string, fn func() error) bool {
	return Run(c, name, func() (bool, error) {
		if err := fn(); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (c *Collector) fail(name, msg string) {
	c.failures = append(c.failures, Failure{Probe: name, Message: msg})
}

// RunCount returns the number of probes executed.
func (c *Collector) RunCount() int { return c.runs }

// ErrorCount returns the number of failed probes.
func (c *Collector) ErrorCount() int { return len(c.failures) }

// Errors returns a copy of the recorded failures, in the order they occurred.
func (c *Collector) Errors() []Failure {
	if len(c.failures) == 0 {
		return nil
	}
	out := make([]Failure, len(c.failures))
	copy(out, c.failures)
	return out
}

// Score is 1 - errors/runs, or 1 when nothing ran.
func (c *Collector) Score() float64 {
	if c.runs == 0 {
		return 1
	}
	return 1 - float64(len(c.failures))/float64(c.runs)
}

// Report logs the collector's summary and failures at debug level.
func (c *Collector) Report(logger *slog.Logger) {
	ReportFailures(logger, c.name, c.runs, c.failures)
}

// ReportFailures logs a parse summary followed by one line per failure, all
// at debug level.
func ReportFailures(logger *slog.Logger, parser string, runs int, failures []Failure) {
	if logger == nil {
		logger = slog.Default()
	}
	score := 1.0
	if runs > 0 {
		score = 1 - float64(len(failures))/float64(runs)
	}
	logger.Debug("probe: parse finished", "parser", parser, "runs", runs, "errors", len(failures), "score", score)
	for _, f := range failures {
		logger.Debug("probe: failed", "parser", parser, "probe", f.Probe, "error", f.Message)
	}
}
