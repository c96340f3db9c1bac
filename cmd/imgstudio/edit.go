package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/imgstudio/internal/config"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/presets"
	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/internal/session"
	"github.com/manash/imgstudio/pkg/models"
)

// exportFlags are the output flags shared by edit, batch and export.
type exportFlags struct {
	output string
	format string
	prefix string
	scale  float64
}

func (f *exportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default: <prefix>-YYYY-MM-DD.<ext>)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "output format (png, jpeg, webp)")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "file name prefix when no output is given")
	cmd.Flags().Float64Var(&f.scale, "scale", 0, "export scale (1, 0.75, 0.5)")
}

// resolve fills unset flags from the configuration.
func (f *exportFlags) resolve(cfg *config.Config) (models.OutputFormat, float64, string, error) {
	format := cfg.ExportFormat()
	if f.format != "" {
		parsed, err := models.ParseOutputFormat(f.format)
		if err != nil {
			return "", 0, "", err
		}
		format = parsed
	}

	scale := cfg.Export.Scale
	if f.scale != 0 {
		if !models.IsValidScale(f.scale) {
			return "", 0, "", fmt.Errorf("%w: %v (valid: %v)", models.ErrInvalidScale, f.scale, models.ValidScales())
		}
		scale = f.scale
	}

	prefix := cfg.Export.Prefix
	if f.prefix != "" {
		prefix = f.prefix
	}
	return format, scale, prefix, nil
}

func (f *exportFlags) save(saver *image.Saver, cfg *config.Config, v models.ImageVersion) (string, error) {
	format, scale, prefix, err := f.resolve(cfg)
	if err != nil {
		return "", err
	}
	return saver.SaveExport(v, f.output, prefix, format, scale)
}

func newEditCmd(app *App, opts *rootOptions) *cobra.Command {
	var (
		out     exportFlags
		sel     presets.Selection
		blur    int
		texture int
	)

	cmd := &cobra.Command{
		Use:   "edit <image> [instruction...]",
		Short: "Apply one edit to an image and export the result",
		Example: `  imgstudio edit mug.png "put the mug on a rustic wooden table"
  imgstudio edit mug.png --preset cinematic -o mug-cinematic.webp
  imgstudio edit mug.png --blur 70 --scale 0.75
  imgstudio edit mug.png --text "Summer Sale"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel.Instruction = strings.Join(args[1:], " ")
			if cmd.Flags().Changed("blur") {
				sel.Blur = &blur
			}
			if cmd.Flags().Changed("texture") {
				sel.Texture = &texture
			}
			return runEdit(cmd.Context(), app, opts, args[0], sel, &out)
		},
	}

	out.register(cmd)
	cmd.Flags().StringVarP(&sel.Preset, "preset", "p", "", "apply a preset by id (see 'imgstudio presets')")
	cmd.Flags().IntVar(&blur, "blur", 0, "background blur level (0-100)")
	cmd.Flags().IntVar(&texture, "texture", 0, "texture enhancement level (0-100)")
	cmd.Flags().StringVar(&sel.Text, "text", "", "overlay text onto the image")

	return cmd
}

func runEdit(parent context.Context, app *App, opts *rootOptions, path string, sel presets.Selection, out *exportFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signalContext(parent)
	defer cancel()

	if err := sel.Validate(); err != nil {
		return err
	}
	instruction, err := sel.Resolve(presets.Default())
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
	if err := s.upload(ctx, path); err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Editing %s with %s/%s...\n", path, s.gateway.Provider(), s.gateway.Model())
	res, err := s.controller.Generate(ctx, instruction)
	if err != nil {
		return fmt.Errorf("edit failed: %w", err)
	}
	printResult(app, res)

	v, _ := s.controller.Current()
	saved, err := out.save(s.saver, s.cfg, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Saved: %s\n", saved)
	return nil
}

func printResult(app *App, res *provider.Result) {
	fmt.Fprintf(app.Out, "Done in %s (cost: $%.4f)\n", res.Duration.Round(time.Millisecond), res.Cost)
	if res.Text != "" {
		fmt.Fprintf(app.Out, "Model note: %s\n", res.Text)
	}
}

func newExportCmd(app *App, opts *rootOptions) *cobra.Command {
	var out exportFlags

	cmd := &cobra.Command{
		Use:   "export <image>",
		Short: "Convert and rescale an image without editing it",
		Example: `  imgstudio export photo.png -f webp --scale 0.5
  imgstudio export photo.webp -o photo.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(opts)
			if err != nil {
				return err
			}

			data, mediaType, err := image.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", session.ErrReadFailure, err)
			}
			if !mediaType.IsAccepted() {
				return fmt.Errorf("%w: %s", session.ErrUnsupportedMediaType, mediaType)
			}

			saved, err := out.save(app.NewSaver(), cfg, models.NewImageVersion(data, mediaType))
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Saved: %s\n", saved)
			return nil
		},
	}
	out.register(cmd)

	return cmd
}
