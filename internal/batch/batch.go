package batch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/manash/imgstudio/internal/presets"
	"github.com/manash/imgstudio/internal/session"
)

type Result struct {
	Index int
	Label string
	// Version is the history index the step produced, or -1 on failure.
	Version  int
	Cost     float64
	Error    error
	Duration time.Duration
}

type Options struct {
	StopOnError bool
	DelayMs     int
}

// Runner applies recipe steps one after another through a controller, so
// every step edits the version the previous step produced.
type Runner struct {
	controller *session.Controller
	catalog    *presets.Catalog
	out        io.Writer
	err        io.Writer
}

func NewRunner(ctrl *session.Controller, catalog *presets.Catalog, out, errOut io.Writer) *Runner {
	if catalog == nil {
		catalog = presets.Default()
	}
	return &Runner{
		controller: ctrl,
		catalog:    catalog,
		out:        out,
		err:        errOut,
	}
}

// Run applies steps in order. A failed step leaves the current version in
// place and the next step builds on it, unless opts.StopOnError is set.
func (r *Runner) Run(ctx context.Context, steps []Step, opts *Options) ([]Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	if !r.controller.Snapshot().Loaded {
		return nil, session.ErrNotLoaded
	}

	results := make([]Result, 0, len(steps))
	total := len(steps)

	for i, step := range steps {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		result := r.runStep(ctx, step, i+1, total)
		results = append(results, result)

		if result.Error != nil && opts.StopOnError {
			return results, fmt.Errorf("stopped at step %d: %w", i+1, result.Error)
		}

		if opts.DelayMs > 0 && i < len(steps)-1 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(time.Duration(opts.DelayMs) * time.Millisecond):
			}
		}
	}

	return results, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, current, total int) Result {
	start := time.Now()
	result := Result{
		Index:   step.Index,
		Label:   step.Label(),
		Version: -1,
	}

	fmt.Fprintf(r.out, "[%d/%d] %s\n", current, total, truncate(result.Label, 60))

	instruction, err := step.Resolve(r.catalog)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		fmt.Fprintf(r.err, "       Error: %v\n", err)
		return result
	}

	res, err := r.controller.Generate(ctx, instruction)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		fmt.Fprintf(r.err, "       Error: %v\n", err)
		log.Debug().Err(err).Int("step", step.Index).Msg("batch step failed")
		return result
	}

	result.Version = r.controller.Snapshot().Cursor
	result.Cost = res.Cost
	if res.Cost > 0 {
		fmt.Fprintf(r.out, "       Version %d ($%.4f, %.1fs)\n", result.Version+1, res.Cost, result.Duration.Seconds())
	} else {
		fmt.Fprintf(r.out, "       Version %d (%.1fs)\n", result.Version+1, result.Duration.Seconds())
	}

	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func (r *Runner) PrintSummary(results []Result) {
	var successful, failed int
	var totalCost float64
	var errors []Result

	for _, res := range results {
		if res.Error != nil {
			failed++
			errors = append(errors, res)
		} else {
			successful++
			totalCost += res.Cost
		}
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Summary:")
	fmt.Fprintf(r.out, "  Successful: %d/%d steps\n", successful, len(results))
	if failed > 0 {
		fmt.Fprintf(r.out, "  Failed: %d (see errors below)\n", failed)
	}
	fmt.Fprintf(r.out, "  Total cost: $%.4f\n", totalCost)

	if len(errors) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, "Errors:")
		for _, e := range errors {
			fmt.Fprintf(r.out, "  [%d] %q: %v\n", e.Index, truncate(e.Label, 40), e.Error)
		}
	}
}
