package main

import (
	"bytes"
	"context"
	"errors"
	goimage "image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/manash/imgstudio/internal/cost"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/journal"
	"github.com/manash/imgstudio/internal/keys"
	"github.com/manash/imgstudio/internal/presets"
	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/internal/session"
	"github.com/manash/imgstudio/pkg/models"
)

// mockProvider implements provider.Provider for testing.
type mockProvider struct {
	name    models.ProviderType
	fail    bool
	mu      sync.Mutex
	prompts []string
}

func (m *mockProvider) Name() models.ProviderType {
	return m.name
}

func (m *mockProvider) Edit(_ context.Context, req *models.EditRequest) (*models.Response, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	n := len(m.prompts)
	m.mu.Unlock()

	if m.fail {
		return nil, errors.New("upstream exploded")
	}
	return &models.Response{
		Images: []models.GeneratedImage{{Data: pngBytes(4, 4, uint8(n*40))}},
		Text:   "looks good",
	}, nil
}

func (m *mockProvider) SupportsModel(_ string) bool { return true }
func (m *mockProvider) SupportsEdit(_ string) bool  { return true }
func (m *mockProvider) ListModels() []string        { return []string{models.DefaultModel(m.name)} }

func (m *mockProvider) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func pngBytes(w, h int, shade uint8) []byte {
	img := goimage.NewRGBA(goimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 100, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// lockedBuffer is written by server goroutines through the global logger.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

type testEnv struct {
	app       *App
	out       *bytes.Buffer
	errOut    *lockedBuffer
	configDir string
	workDir   string
	provider  *mockProvider
	apiKeys   []string
}

// newTestEnv isolates config, keys, journal and the working directory.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	configDir := t.TempDir()
	workDir := t.TempDir()
	t.Setenv(keys.DirEnv, configDir)
	for _, name := range []string{
		"GEMINI_API_KEY", "OPENAI_API_KEY", "IMGSTUDIO_PROVIDER", "IMGSTUDIO_MODEL",
		"IMGSTUDIO_LOG_LEVEL", "IMGSTUDIO_DATA_DIR", "IMGSTUDIO_TIMEOUT_SEC",
	} {
		t.Setenv(name, "")
	}
	t.Chdir(workDir)

	env := &testEnv{
		out:       &bytes.Buffer{},
		errOut:    &lockedBuffer{},
		configDir: configDir,
		workDir:   workDir,
		provider:  &mockProvider{name: models.ProviderGemini},
	}
	env.app = &App{
		In:       strings.NewReader(""),
		Out:      env.out,
		Err:      env.errOut,
		Registry: models.DefaultRegistry(),
		NewFactory: func(registry *models.ModelRegistry) *provider.Factory {
			f := provider.NewFactory(registry)
			for _, pt := range models.ValidProviders() {
				f.Register(pt, func(cfg *provider.Config, _ *models.ModelRegistry) (provider.Provider, error) {
					env.apiKeys = append(env.apiKeys, cfg.APIKey)
					env.provider.name = pt
					return env.provider, nil
				})
			}
			return f
		},
		NewSaver: image.NewSaver,
		NewKeyStore: func() (*keys.Store, error) {
			return keys.NewStoreAt(configDir), nil
		},
	}
	return env
}

func (e *testEnv) execute(args ...string) error {
	return e.executeContext(context.Background(), args...)
}

func (e *testEnv) executeContext(ctx context.Context, args ...string) error {
	cmd := newRootCmd(e.app)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func (e *testEnv) writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.workDir, name)
	if err := os.WriteFile(path, pngBytes(4, 4, 10), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultApp(t *testing.T) {
	app := DefaultApp()

	if app.In == nil || app.Out == nil || app.Err == nil {
		t.Error("DefaultApp() left a stream nil")
	}
	if app.Registry == nil {
		t.Error("DefaultApp() Registry is nil")
	}
	if app.NewFactory == nil || app.NewSaver == nil || app.NewKeyStore == nil {
		t.Error("DefaultApp() left a constructor nil")
	}
}

func TestNewFactory(t *testing.T) {
	factory := newFactory(models.DefaultRegistry())
	cfg := &provider.Config{APIKey: "test-key"}

	for _, pt := range models.ValidProviders() {
		p, err := factory.Open(pt, cfg)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", pt, err)
		}
		if p.Name() != pt {
			t.Errorf("Open(%s).Name() = %s", pt, p.Name())
		}
	}

	if _, err := factory.Open("stability", cfg); !errors.Is(err, provider.ErrProviderNotFound) {
		t.Errorf("Open(stability) error = %v, want ErrProviderNotFound", err)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd(DefaultApp())

	want := []string{"edit", "batch", "export", "serve", "interactive", "presets", "keys", "cost"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}

	for _, flag := range []string{"config", "provider", "model", "api-key", "log-level", "verbose"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestRootCmd_Version(t *testing.T) {
	env := newTestEnv(t)
	if err := env.execute("--version"); err != nil {
		t.Fatalf("--version error = %v", err)
	}
	if !strings.Contains(env.out.String(), "commit: none") {
		t.Errorf("version output = %q", env.out.String())
	}
}

func TestEdit(t *testing.T) {
	env := newTestEnv(t)
	in := env.writeImage(t, "product.png")
	out := filepath.Join(env.workDir, "result.png")

	err := env.execute("edit", in, "make", "it", "warmer", "-o", out, "--api-key", "flag-key")
	if err != nil {
		t.Fatalf("edit error = %v", err)
	}

	calls := env.provider.calls()
	if len(calls) != 1 || calls[0] != "make it warmer" {
		t.Errorf("provider prompts = %v", calls)
	}
	if len(env.apiKeys) != 1 || env.apiKeys[0] != "flag-key" {
		t.Errorf("api keys = %v, want [flag-key]", env.apiKeys)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if image.Sniff(data) != models.MediaPNG {
		t.Errorf("output media type = %s", image.Sniff(data))
	}

	text := env.out.String()
	for _, want := range []string{"gemini/gemini-2.5-flash-image", "Model note: looks good", "Saved: " + out} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	j, err := journal.Open(env.configDir)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	sessions, err := j.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Errorf("journal sessions = %d, want 1", len(sessions))
	}
}

func TestEdit_Selections(t *testing.T) {
	cinematic, err := presets.Default().Find("cinematic")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"preset", []string{"--preset", "cinematic"}, cinematic.Instruction},
		{"blur", []string{"--blur", "40"}, presets.BlurInstruction(40)},
		{"texture", []string{"--texture", "0"}, presets.TextureInstruction(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := env.writeImage(t, "product.png")

			args := append([]string{"edit", in, "--api-key", "k", "-o", "out.png"}, tt.args...)
			if err := env.execute(args...); err != nil {
				t.Fatalf("edit error = %v", err)
			}
			calls := env.provider.calls()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("prompt = %v, want %q", calls, tt.want)
			}
		})
	}
}

func TestEdit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, env *testEnv) []string
		wantErr error
		wantMsg string
	}{
		{
			name: "ambiguous selection",
			setup: func(t *testing.T, env *testEnv) []string {
				return []string{"edit", env.writeImage(t, "a.png"), "warmer", "--preset", "cinematic", "--api-key", "k"}
			},
			wantErr: presets.ErrAmbiguousSelection,
		},
		{
			name: "no instruction",
			setup: func(t *testing.T, env *testEnv) []string {
				return []string{"edit", env.writeImage(t, "a.png"), "--api-key", "k"}
			},
			wantErr: presets.ErrAmbiguousSelection,
		},
		{
			name: "unknown preset",
			setup: func(t *testing.T, env *testEnv) []string {
				return []string{"edit", env.writeImage(t, "a.png"), "--preset", "nope", "--api-key", "k"}
			},
			wantErr: presets.ErrPresetNotFound,
		},
		{
			name: "unsupported file",
			setup: func(t *testing.T, env *testEnv) []string {
				path := filepath.Join(env.workDir, "notes.txt")
				if err := os.WriteFile(path, []byte("just text"), 0644); err != nil {
					t.Fatal(err)
				}
				return []string{"edit", path, "warmer", "--api-key", "k"}
			},
			wantErr: session.ErrUnsupportedMediaType,
		},
		{
			name: "missing file",
			setup: func(t *testing.T, env *testEnv) []string {
				return []string{"edit", filepath.Join(env.workDir, "missing.png"), "warmer", "--api-key", "k"}
			},
			wantErr: session.ErrReadFailure,
		},
		{
			name: "missing api key",
			setup: func(t *testing.T, env *testEnv) []string {
				return []string{"edit", env.writeImage(t, "a.png"), "warmer"}
			},
			wantMsg: "API key required",
		},
		{
			name: "bad format",
			setup: func(t *testing.T, env *testEnv) []string {
				return []string{"edit", env.writeImage(t, "a.png"), "warmer", "-f", "bmp", "--api-key", "k"}
			},
			wantErr: models.ErrInvalidFormat,
		},
		{
			name: "bad provider",
			setup: func(t *testing.T, env *testEnv) []string {
				return []string{"edit", env.writeImage(t, "a.png"), "warmer", "--provider", "stability", "--api-key", "k"}
			},
			wantMsg: "unknown provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			err := env.execute(tt.setup(t, env)...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestEdit_GenerationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.fail = true
	in := env.writeImage(t, "product.png")

	err := env.execute("edit", in, "warmer", "--api-key", "k", "-o", "out.png")
	var genErr *provider.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want *provider.GenerationError", err)
	}
	if _, statErr := os.Stat(filepath.Join(env.workDir, "out.png")); !os.IsNotExist(statErr) {
		t.Error("failed edit should not write an output file")
	}
}

func TestEdit_StoredKeyAndConfig(t *testing.T) {
	env := newTestEnv(t)
	if err := env.execute("keys", "set", "openai", "sk-stored-key-1234"); err != nil {
		t.Fatal(err)
	}

	cfgPath := filepath.Join(env.configDir, "custom.yaml")
	cfgYAML := "provider: openai\nexport:\n  prefix: shop\n  format: jpeg\n  scale: 1\n"
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0644); err != nil {
		t.Fatal(err)
	}

	in := env.writeImage(t, "product.png")
	if err := env.execute("--config", cfgPath, "edit", in, "warmer"); err != nil {
		t.Fatalf("edit error = %v", err)
	}

	if len(env.apiKeys) != 1 || env.apiKeys[0] != "sk-stored-key-1234" {
		t.Errorf("api keys = %v", env.apiKeys)
	}
	if env.provider.name != models.ProviderOpenAI {
		t.Errorf("provider = %s, want openai", env.provider.name)
	}

	matches, _ := filepath.Glob(filepath.Join(env.workDir, "shop-*.jpeg"))
	if len(matches) != 1 {
		t.Errorf("expected one shop-*.jpeg export, got %v", matches)
	}
}

func TestEdit_ModelSelectsProvider(t *testing.T) {
	env := newTestEnv(t)
	in := env.writeImage(t, "product.png")

	if err := env.execute("edit", in, "warmer", "-m", "gpt-image-1", "--api-key", "k", "-o", "out.png"); err != nil {
		t.Fatalf("edit error = %v", err)
	}
	if env.provider.name != models.ProviderOpenAI {
		t.Errorf("provider = %s, want openai", env.provider.name)
	}
	if !strings.Contains(env.out.String(), "openai/gpt-image-1") {
		t.Errorf("output = %q", env.out.String())
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	in := env.writeImage(t, "photo.png")
	out := filepath.Join(env.workDir, "small.jpg")

	if err := env.execute("export", in, "-f", "jpeg", "--scale", "0.5", "-o", out); err != nil {
		t.Fatalf("export error = %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 2 {
		t.Errorf("exported size = %dx%d, want 2x2", b.Dx(), b.Dy())
	}
	if len(env.provider.calls()) != 0 {
		t.Error("export should not call the provider")
	}
}

func TestExport_InvalidScale(t *testing.T) {
	env := newTestEnv(t)
	in := env.writeImage(t, "photo.png")

	err := env.execute("export", in, "--scale", "3")
	if !errors.Is(err, models.ErrInvalidScale) {
		t.Errorf("error = %v, want ErrInvalidScale", err)
	}
}

func TestBatch(t *testing.T) {
	env := newTestEnv(t)
	in := env.writeImage(t, "product.png")
	recipe := filepath.Join(env.workDir, "recipe.txt")
	content := "# warm it up\nadd warm light\n\nplace on marble\n"
	if err := os.WriteFile(recipe, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(env.workDir, "final.png")

	if err := env.execute("batch", in, recipe, "--keep-steps", "-o", out, "--api-key", "k"); err != nil {
		t.Fatalf("batch error = %v", err)
	}

	calls := env.provider.calls()
	if len(calls) != 2 || calls[0] != "add warm light" || calls[1] != "place on marble" {
		t.Errorf("prompts = %v", calls)
	}

	for _, p := range []string{out, image.StepPath(out, 0, models.FormatPNG), image.StepPath(out, 1, models.FormatPNG)} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}
	if !strings.Contains(env.out.String(), "Successful: 2/2") {
		t.Errorf("summary missing:\n%s", env.out.String())
	}
}

func TestBatch_StopOnError(t *testing.T) {
	env := newTestEnv(t)
	env.provider.fail = true
	in := env.writeImage(t, "product.png")
	recipe := filepath.Join(env.workDir, "recipe.yaml")
	content := "- instruction: add warm light\n- preset: cinematic\n"
	if err := os.WriteFile(recipe, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	err := env.execute("batch", in, recipe, "--stop-on-error", "--api-key", "k", "-o", "final.png")
	if err == nil || !strings.Contains(err.Error(), "stopped at step 1") {
		t.Fatalf("error = %v, want stop at step 1", err)
	}
	if len(env.provider.calls()) != 1 {
		t.Errorf("provider calls = %d, want 1", len(env.provider.calls()))
	}
	// The original is still exported.
	if _, err := os.Stat(filepath.Join(env.workDir, "final.png")); err != nil {
		t.Errorf("final export missing: %v", err)
	}
}

func TestBatch_BadRecipe(t *testing.T) {
	env := newTestEnv(t)
	in := env.writeImage(t, "product.png")
	recipe := filepath.Join(env.workDir, "recipe.csv")
	if err := os.WriteFile(recipe, []byte("a,b"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := env.execute("batch", in, recipe, "--api-key", "k"); err == nil {
		t.Fatal("expected an error for an unknown recipe format")
	}
	if len(env.apiKeys) != 0 {
		t.Error("provider should not be built for a bad recipe")
	}
}

func TestInteractive(t *testing.T) {
	env := newTestEnv(t)
	in := env.writeImage(t, "product.png")
	env.app.In = strings.NewReader("edit add a shadow\nundo\nquit\n")

	if err := env.execute("interactive", in, "--api-key", "k"); err != nil {
		t.Fatalf("interactive error = %v", err)
	}

	calls := env.provider.calls()
	if len(calls) != 1 || calls[0] != "add a shadow" {
		t.Errorf("prompts = %v", calls)
	}
	if !strings.Contains(env.out.String(), "gemini-2.5-flash-image") {
		t.Errorf("prompt should name the model:\n%s", env.out.String())
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := env.executeContext(ctx, "serve", "--addr", "127.0.0.1:0", "--api-key", "k"); err != nil {
		t.Fatalf("serve error = %v", err)
	}
}

func TestPresets(t *testing.T) {
	env := newTestEnv(t)
	if err := env.execute("presets"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"cinematic", "etsy_wood", "(styles)"} {
		if !strings.Contains(env.out.String(), want) {
			t.Errorf("presets output missing %q", want)
		}
	}

	env.out.Reset()
	if err := env.execute("presets", "product"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(env.out.String(), "cinematic") {
		t.Error("category filter should hide other categories")
	}

	if err := env.execute("presets", "nope"); !errors.Is(err, presets.ErrCategoryNotFound) {
		t.Errorf("error = %v, want ErrCategoryNotFound", err)
	}
}

func TestKeys(t *testing.T) {
	env := newTestEnv(t)

	if err := env.execute("keys", "set", "gemini", "AIzaSecretValue99"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(env.out.String(), "AIzaSecretValue99") {
		t.Error("set should not echo the full key")
	}

	env.out.Reset()
	if err := env.execute("keys", "get", "gemini"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(env.out.String()); got != keys.MaskKey("AIzaSecretValue99") {
		t.Errorf("get = %q", got)
	}

	env.out.Reset()
	if err := env.execute("keys", "get", "gemini", "--show"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(env.out.String()); got != "AIzaSecretValue99" {
		t.Errorf("get --show = %q", got)
	}

	env.out.Reset()
	if err := env.execute("keys", "list"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(env.out.String(), "gemini") {
		t.Errorf("list = %q", env.out.String())
	}

	if err := env.execute("keys", "delete", "gemini"); err != nil {
		t.Fatal(err)
	}
	if err := env.execute("keys", "get", "gemini"); err == nil {
		t.Error("get after delete should fail")
	}
	if err := env.execute("keys", "delete", "gemini"); err == nil {
		t.Error("second delete should fail")
	}
	if err := env.execute("keys", "set", "stability", "abc"); err == nil {
		t.Error("unknown provider should be rejected")
	}

	env.out.Reset()
	if err := env.execute("keys", "list"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(env.out.String(), "No stored keys.") {
		t.Errorf("list = %q", env.out.String())
	}
}

func TestCost(t *testing.T) {
	env := newTestEnv(t)

	if err := env.execute("cost", "set-price", "gemini-2.5-flash-image", "0.05"); err != nil {
		t.Fatal(err)
	}
	pricing, err := cost.LoadPricing(env.configDir)
	if err != nil || pricing == nil {
		t.Fatalf("pricing = %v, %v", pricing, err)
	}
	if p, ok := pricing.Lookup("gemini-2.5-flash-image", ""); !ok || p != 0.05 {
		t.Errorf("override = %v, %v", p, ok)
	}

	in := env.writeImage(t, "product.png")
	if err := env.execute("edit", in, "warmer", "--api-key", "k", "-o", "out.png"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(env.out.String(), "$0.0500") {
		t.Errorf("edit should report the overridden price:\n%s", env.out.String())
	}

	env.out.Reset()
	if err := env.execute("cost"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(env.out.String(), "total: $0.0500") {
		t.Errorf("cost total = %q", env.out.String())
	}

	env.out.Reset()
	if err := env.execute("cost", "provider"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(env.out.String(), "gemini") {
		t.Errorf("cost provider = %q", env.out.String())
	}

	if err := env.execute("cost", "yesterday"); err == nil {
		t.Error("unknown period should fail")
	}

	if err := env.execute("cost", "reset-prices"); err != nil {
		t.Fatal(err)
	}
	if pricing, _ := cost.LoadPricing(env.configDir); pricing != nil {
		t.Error("reset-prices should remove the overrides")
	}
}
