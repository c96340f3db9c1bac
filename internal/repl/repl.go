package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/manash/imgstudio/internal/display"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/journal"
	"github.com/manash/imgstudio/internal/presets"
	"github.com/manash/imgstudio/internal/session"
	"github.com/manash/imgstudio/pkg/models"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)
	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62"))
	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)
)

// CostReporter answers cost questions for the cost command.
type CostReporter interface {
	Summary(ctx context.Context, p journal.Period, now time.Time) (*journal.CostSummary, error)
	GetCostByProvider(ctx context.Context) ([]journal.ProviderCostSummary, error)
	GetSessionCost(ctx context.Context, sessionID string) (*journal.CostSummary, error)
}

type REPL struct {
	in         io.Reader
	out        io.Writer
	err        io.Writer
	controller *session.Controller
	catalog    *presets.Catalog
	costs      CostReporter
	displayer  *display.Displayer
	saver      *image.Saver
	provider   models.ProviderType
	model      string
	export     ExportDefaults
	commands   map[string]Command
	running    bool
}

// ExportDefaults fill in the arguments the export command leaves out.
type ExportDefaults struct {
	Prefix string
	Format models.OutputFormat
	Scale  float64
}

type Config struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	Controller *session.Controller
	Catalog    *presets.Catalog
	// Costs is optional; without it the cost command reports that no
	// journal is available.
	Costs CostReporter
	// Displayer is nil when the terminal cannot render images inline.
	Displayer *display.Displayer
	Saver     *image.Saver
	Provider  models.ProviderType
	Model     string
	Export    ExportDefaults
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:         cfg.In,
		out:        cfg.Out,
		err:        cfg.Err,
		controller: cfg.Controller,
		catalog:    cfg.Catalog,
		costs:      cfg.Costs,
		displayer:  cfg.Displayer,
		saver:      cfg.Saver,
		provider:   cfg.Provider,
		model:      cfg.Model,
		export:     cfg.Export,
		commands:   make(map[string]Command),
	}
	if r.catalog == nil {
		r.catalog = presets.Default()
	}
	if r.saver == nil {
		r.saver = image.NewSaver()
	}
	if !r.export.Format.IsValid() {
		r.export.Format = models.FormatPNG
	}
	if !models.IsValidScale(r.export.Scale) {
		r.export.Scale = 1.0
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, promptStyle.Render("imgstudio")+" interactive mode")
	fmt.Fprintln(r.out, "Load an image with 'load <path>', then describe edits with 'edit <instruction>'.")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	fmt.Fprint(r.out, r.prompt())
}

// prompt renders "imgstudio [provider/model] (cursor/length)> ". The cursor
// is shown 1-based; the position is omitted until an image is loaded.
func (r *REPL) prompt() string {
	var b strings.Builder
	b.WriteString(promptStyle.Render("imgstudio"))
	b.WriteString(" ")
	b.WriteString(modelStyle.Render(fmt.Sprintf("[%s/%s]", r.provider, r.model)))

	snap := r.controller.Snapshot()
	if snap.Loaded {
		b.WriteString(" ")
		b.WriteString(cursorStyle.Render(fmt.Sprintf("(%d/%d)", snap.Cursor+1, snap.Length)))
	}
	b.WriteString("> ")
	return b.String()
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
