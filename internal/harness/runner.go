package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kumasuke/gsu/internal/platform"
	"github.com/rs/zerolog/log"
)

// Status is the outcome of one scenario.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusError  Status = "error"
)

// Result is the outcome of one scenario.
type Result struct {
	Scenario string
	Status   Status
	Err      error
	Duration time.Duration
}

// Report collects scenario results in execution order.
type Report struct {
	Results []Result
}

// Passed reports whether every scenario passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if res.Status != StatusPassed {
			return false
		}
	}
	return true
}

// Count returns the number of results with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Write prints one line per scenario followed by a summary.
func (r *Report) Write(w io.Writer) error {
	for _, res := range r.Results {
		line := fmt.Sprintf("%-7s %-24s %s", res.Status, res.Scenario, res.Duration.Round(time.Millisecond))
		if res.Err != nil {
			line += "  " + res.Err.Error()
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d passed, %d failed, %d errors\n",
		r.Count(StatusPassed), r.Count(StatusFailed), r.Count(StatusError))
	return err
}

// Runner runs scenarios, each against a fresh Fixture.
type Runner struct {
	Client  Storage
	Wrapper platform.WrapperConfig
	Options Options
}

// Run executes the named scenarios in order, or all of them when names is
// empty. A failing scenario does not stop the ones after it.
func (r *Runner) Run(ctx context.Context, names []string) (*Report, error) {
	scenarios := Scenarios()
	if len(names) > 0 {
		scenarios = nil
		for _, name := range names {
			s, ok := Lookup(name)
			if !ok {
				return nil, fmt.Errorf("unknown scenario %q", name)
			}
			scenarios = append(scenarios, s)
		}
	}

	report := &Report{}
	for _, s := range scenarios {
		res := r.runOne(ctx, s)
		report.Results = append(report.Results, res)

		event := log.Info()
		if res.Status != StatusPassed {
			event = log.Warn().Err(res.Err)
		}
		event.Str("scenario", s.Name).Str("status", string(res.Status)).Dur("duration", res.Duration).Msg("Scenario finished")
	}
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, s Scenario) (res Result) {
	start := time.Now()
	res.Scenario = s.Name

	fixture := NewFixture(r.Client, r.Options)
	defer func() {
		if err := fixture.Teardown(ctx); err != nil && res.Err == nil {
			res.Status = StatusError
			res.Err = err
		}
		res.Duration = time.Since(start)
	}()

	if err := fixture.Setup(ctx); err != nil {
		res.Status = StatusError
		res.Err = fmt.Errorf("setup: %w", err)
		return res
	}

	err := s.Run(ctx, &Case{Name: s.Name, Fixture: fixture, Wrapper: r.Wrapper})
	var failure *AssertionFailure
	switch {
	case err == nil:
		res.Status = StatusPassed
	case errors.As(err, &failure):
		res.Status = StatusFailed
		res.Err = err
	default:
		res.Status = StatusError
		res.Err = err
	}
	return res
}
