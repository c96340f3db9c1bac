package main

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/manash/imgstudio/internal/display"
	"github.com/manash/imgstudio/internal/presets"
	"github.com/manash/imgstudio/internal/repl"
	"github.com/manash/imgstudio/internal/web"
)

func newServeCmd(app *App, opts *rootOptions) *cobra.Command {
	var (
		addr        string
		maxUploadMB int64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editing session over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := app.newStudio(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if addr == "" {
				addr = s.cfg.Server.Addr
			}
			if !s.cfg.Verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			wc := web.Config{
				Controller:     s.controller,
				Catalog:        presets.Default(),
				ExportPrefix:   s.cfg.Export.Prefix,
				ExportFormat:   s.cfg.ExportFormat(),
				ExportScale:    s.cfg.Export.Scale,
				MaxUploadBytes: maxUploadMB << 20,
			}
			if s.journal != nil {
				wc.Journal = s.journal
			}
			return web.New(wc).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().Int64Var(&maxUploadMB, "max-upload-mb", web.DefaultMaxUploadBytes>>20, "largest accepted upload in MiB")

	return cmd
}

func newInteractiveCmd(app *App, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "interactive [image]",
		Aliases: []string{"i", "repl"},
		Short:   "Edit an image step by step from a prompt",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := app.newStudio(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 1 {
				if err := s.upload(ctx, args[0]); err != nil {
					return err
				}
			}

			rc := &repl.Config{
				In:         app.In,
				Out:        app.Out,
				Err:        app.Err,
				Controller: s.controller,
				Catalog:    presets.Default(),
				Displayer:  app.displayer(),
				Saver:      s.saver,
				Provider:   s.gateway.Provider(),
				Model:      s.gateway.Model(),
				Export: repl.ExportDefaults{
					Prefix: s.cfg.Export.Prefix,
					Format: s.cfg.ExportFormat(),
					Scale:  s.cfg.Export.Scale,
				},
			}
			if s.journal != nil {
				rc.Costs = s.journal
			}

			err = repl.New(rc).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	return cmd
}

// displayer renders inline previews when the terminal supports the kitty
// graphics protocol.
func (a *App) displayer() *display.Displayer {
	if a.Terminal == nil || !display.Supported(a.Terminal) {
		return nil
	}
	cols := display.Width(a.Terminal, 80) / 2
	return display.New(a.Out).WithColumns(cols)
}
