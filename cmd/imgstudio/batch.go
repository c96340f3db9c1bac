package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/imgstudio/internal/batch"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/presets"
)

func newBatchCmd(app *App, opts *rootOptions) *cobra.Command {
	var (
		out         exportFlags
		stopOnError bool
		keepSteps   bool
		delayMs     int
	)

	cmd := &cobra.Command{
		Use:   "batch <image> <recipe>",
		Short: "Apply a recipe of edits, each building on the previous result",
		Long: `Apply every step of a recipe to an image in order. Each step edits the
result of the previous one. A failed step leaves the current version in place
and the run continues unless --stop-on-error is set.

Recipes are plain text (one instruction per line, # for comments), JSON or
YAML lists of steps. A structured step sets exactly one of instruction,
preset, blur, texture or text:

  - preset: clean_background
  - blur: 60
  - instruction: add soft morning light from the left
  - text: Summer Sale`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			steps, err := batch.ParseFile(args[1])
			if err != nil {
				return err
			}

			s, err := app.newStudio(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if _, _, _, err := out.resolve(s.cfg); err != nil {
				return err
			}
			if err := s.upload(ctx, args[0]); err != nil {
				return err
			}

			fmt.Fprintf(app.Out, "Running %d step(s) with %s/%s\n", len(steps), s.gateway.Provider(), s.gateway.Model())
			runner := batch.NewRunner(s.controller, presets.Default(), app.Out, app.Err)
			results, runErr := runner.Run(ctx, steps, &batch.Options{
				StopOnError: stopOnError,
				DelayMs:     delayMs,
			})
			runner.PrintSummary(results)

			if keepSteps {
				if err := saveSteps(app, s, &out); err != nil {
					return err
				}
			}

			v, _ := s.controller.Current()
			saved, err := out.save(s.saver, s.cfg, v)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Saved: %s\n", saved)
			return runErr
		},
	}

	out.register(cmd)
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "stop at the first failed step")
	cmd.Flags().BoolVar(&keepSteps, "keep-steps", false, "also write every intermediate version")
	cmd.Flags().IntVar(&delayMs, "delay", 0, "pause between steps in milliseconds")

	return cmd
}

// saveSteps writes every generated version next to the export path.
func saveSteps(app *App, s *studio, out *exportFlags) error {
	history := s.controller.History()
	if len(history) < 2 {
		return nil
	}

	format, _, prefix, err := out.resolve(s.cfg)
	if err != nil {
		return err
	}
	base := out.output
	if base == "" {
		base = image.ExportFilename(prefix, time.Now(), format)
	}

	paths, err := s.saver.SaveSteps(history[1:], base)
	for _, p := range paths {
		fmt.Fprintf(app.Out, "Step saved: %s\n", p)
	}
	return err
}
