package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/manash/imgstudio/internal/config"
	"github.com/manash/imgstudio/internal/cost"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/journal"
	"github.com/manash/imgstudio/internal/keys"
	"github.com/manash/imgstudio/internal/logging"
	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/internal/provider/gemini"
	"github.com/manash/imgstudio/internal/provider/openai"
	"github.com/manash/imgstudio/internal/session"
	"github.com/manash/imgstudio/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

type App struct {
	In          io.Reader
	Out         io.Writer
	Err         io.Writer
	Terminal    *os.File
	Registry    *models.ModelRegistry
	NewFactory  func(registry *models.ModelRegistry) *provider.Factory
	NewSaver    func() *image.Saver
	NewKeyStore func() (*keys.Store, error)
}

func DefaultApp() *App {
	return &App{
		In:          os.Stdin,
		Out:         os.Stdout,
		Err:         os.Stderr,
		Terminal:    os.Stdout,
		Registry:    models.DefaultRegistry(),
		NewFactory:  newFactory,
		NewSaver:    image.NewSaver,
		NewKeyStore: keys.NewStore,
	}
}

func newFactory(registry *models.ModelRegistry) *provider.Factory {
	f := provider.NewFactory(registry)
	f.Register(models.ProviderGemini, func(cfg *provider.Config, r *models.ModelRegistry) (provider.Provider, error) {
		return gemini.New(cfg, r)
	})
	f.Register(models.ProviderOpenAI, func(cfg *provider.Config, r *models.ModelRegistry) (provider.Provider, error) {
		return openai.New(cfg, r)
	})
	return f
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	provider   string
	model      string
	apiKey     string
	logLevel   string
	verbose    bool
}

func newRootCmd(app *App) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "imgstudio",
		Short: "Edit photos with generative image models",
		Long: `imgstudio edits a photo through a generative image model, one instruction
at a time. Every result becomes a new version that can be undone, redone or
exported.

Supported providers:
  - Gemini (gemini-2.5-flash-image)
  - OpenAI (gpt-image-1)

Examples:
  imgstudio edit product.jpg "place the product on a marble countertop"
  imgstudio edit product.jpg --preset clean_background -f webp --scale 0.5
  imgstudio batch product.jpg recipe.yaml --keep-steps
  imgstudio interactive product.jpg
  imgstudio serve --addr 127.0.0.1:8080`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(app.In)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: config.yaml in the imgstudio config directory)")
	flags.StringVar(&opts.provider, "provider", "", "provider to use (gemini, openai)")
	flags.StringVarP(&opts.model, "model", "m", "", "model to use (defaults to the provider's editing model)")
	flags.StringVar(&opts.apiKey, "api-key", "", "API key (overrides stored keys and <PROVIDER>_API_KEY)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log provider requests and enable debug logging")

	cmd.AddCommand(
		newEditCmd(app, opts),
		newBatchCmd(app, opts),
		newExportCmd(app, opts),
		newServeCmd(app, opts),
		newInteractiveCmd(app, opts),
		newPresetsCmd(app),
		newKeysCmd(app),
		newCostCmd(app, opts),
	)

	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// loadConfig layers the persistent flags over the config file and installs
// the global logger.
func (a *App) loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.provider != "" {
		cfg.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.verbose {
		cfg.Verbose = true
		if opts.logLevel == "" {
			cfg.LogLevel = "debug"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, a.Err); err != nil {
		return nil, err
	}
	return cfg, nil
}

// studio is one fully wired editing session.
type studio struct {
	cfg        *config.Config
	gateway    *provider.Gateway
	controller *session.Controller
	journal    *journal.Store
	saver      *image.Saver
}

func (s *studio) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

// newStudio builds the gateway and controller for the configured provider and
// attaches the journal. A journal that cannot be opened is logged and
// skipped.
func (a *App) newStudio(opts *rootOptions) (*studio, error) {
	cfg, err := a.loadConfig(opts)
	if err != nil {
		return nil, err
	}

	factory := a.NewFactory(a.Registry)

	// --model alone picks the provider that serves it.
	if opts.model != "" && opts.provider == "" {
		if pt, err := factory.ProviderFor(cfg.Model); err == nil {
			cfg.Provider = string(pt)
		}
	}
	providerType := models.ProviderType(cfg.Provider)
	settings := cfg.ProviderSettings()

	explicit := opts.apiKey
	if explicit == "" {
		explicit = settings.APIKey
	}
	store, err := a.NewKeyStore()
	if err != nil {
		log.Warn().Err(err).Msg("key store unavailable")
		store = nil
	}
	apiKey, source, err := store.Resolve(explicit, providerType)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("provider", string(providerType)).Str("source", source).Msg("resolved API key")

	providerCfg := &provider.Config{
		APIKey:     apiKey,
		BaseURL:    settings.BaseURL,
		TimeoutSec: cfg.TimeoutSec,
		Verbose:    cfg.Verbose,
	}
	prov, err := factory.Open(providerType, providerCfg)
	if err != nil {
		return nil, err
	}

	pricing, err := cost.LoadPricing(cfg.DataDir)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring pricing overrides")
		pricing = nil
	}

	saver := a.NewSaver()
	gw, err := provider.NewGateway(prov, a.Registry, provider.GatewayConfig{
		Model:      cfg.Model,
		Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		Calculator: cost.NewCalculator().WithOverrides(pricing),
		Saver:      saver,
	})
	if err != nil {
		return nil, err
	}

	s := &studio{
		cfg:        cfg,
		gateway:    gw,
		controller: session.NewController(gw),
		saver:      saver,
	}

	j, err := journal.Open(cfg.DataDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.DataDir).Msg("journal disabled")
		return s, nil
	}
	s.journal = j
	s.controller.SetRecorder(j)
	return s, nil
}

// upload reads a local image into the controller.
func (s *studio) upload(ctx context.Context, path string) error {
	data, mediaType, err := image.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrReadFailure, err)
	}
	return s.controller.Upload(ctx, data, mediaType)
}
