package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/imgstudio/internal/cost"
	"github.com/manash/imgstudio/internal/journal"
	"github.com/manash/imgstudio/internal/presets"
)

func newCostCmd(app *App, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cost [today|week|month|total|provider]",
		Short: "Show what generations have cost",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period := "total"
			if len(args) == 1 {
				period = strings.ToLower(args[0])
			}

			cfg, err := app.loadConfig(opts)
			if err != nil {
				return err
			}
			j, err := journal.Open(cfg.DataDir)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			if period == "provider" {
				summaries, err := j.GetCostByProvider(ctx)
				if err != nil {
					return err
				}
				if len(summaries) == 0 {
					fmt.Fprintln(app.Out, "No generations recorded.")
					return nil
				}
				for _, s := range summaries {
					fmt.Fprintf(app.Out, "%-10s $%.4f (%d images)\n", s.Provider, s.TotalCost, s.ImageCount)
				}
				return nil
			}

			summary, err := j.Summary(ctx, journal.Period(period), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s: $%.4f (%d images, %d generations)\n",
				period, summary.TotalCost, summary.ImageCount, summary.EntryCount)
			return nil
		},
	}

	cmd.AddCommand(newSetPriceCmd(app, opts), newResetPricesCmd(app, opts))
	return cmd
}

func newSetPriceCmd(app *App, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-price <model> <price> [size]",
		Short: "Override the per-image price of a model",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}
			size := ""
			if len(args) == 3 {
				size = args[2]
			}

			cfg, err := app.loadConfig(opts)
			if err != nil {
				return err
			}
			if err := cost.SetPrice(cfg.DataDir, args[0], size, price); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Price for %s set to $%.4f\n", args[0], price)
			return nil
		},
	}
}

func newResetPricesCmd(app *App, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-prices",
		Short: "Drop all price overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(opts)
			if err != nil {
				return err
			}
			if err := cost.DeletePricing(cfg.DataDir); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "Price overrides removed.")
			return nil
		},
	}
}

func newPresetsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "presets [category]",
		Short: "List the built-in edit presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := presets.Default()
			categories := catalog.Categories
			if len(args) == 1 {
				cat, err := catalog.Category(args[0])
				if err != nil {
					return err
				}
				categories = []presets.Category{cat}
			}

			for i, cat := range categories {
				if i > 0 {
					fmt.Fprintln(app.Out)
				}
				fmt.Fprintf(app.Out, "%s (%s)\n", cat.Label, cat.ID)
				for _, p := range cat.Presets {
					fmt.Fprintf(app.Out, "  %-22s %s\n", p.ID, p.Label)
				}
			}
			return nil
		},
	}
}
