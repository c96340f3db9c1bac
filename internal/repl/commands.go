package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/journal"
	"github.com/manash/imgstudio/internal/presets"
	"github.com/manash/imgstudio/internal/security"
	"github.com/manash/imgstudio/internal/session"
	"github.com/manash/imgstudio/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&LoadCommand{},
		&EditCommand{},
		&PresetCommand{},
		&BlurCommand{},
		&TextureCommand{},
		&TextCommand{},
		&UndoCommand{},
		&RedoCommand{},
		&ResetCommand{},
		&ShowCommand{},
		&CompareCommand{},
		&HistoryCommand{},
		&StatusCommand{},
		&ExportCommand{},
		&PresetsCommand{},
		&CostCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// generate runs one edit and reports the new version.
func (r *REPL) generate(ctx context.Context, instruction string) error {
	fmt.Fprintln(r.out, dimStyle.Render("Generating: "+truncate(instruction, 60)))

	res, err := r.controller.Generate(ctx, instruction)
	if err != nil {
		return err
	}

	snap := r.controller.Snapshot()
	fmt.Fprintf(r.out, "Version %d of %d (%s, %s, %.1fs)\n",
		snap.Cursor+1, snap.Length, res.Version.MediaType(), res.Model, res.Duration.Seconds())
	if res.Cost > 0 {
		fmt.Fprintf(r.out, "Cost: $%.4f\n", res.Cost)
	}
	if text := strings.TrimSpace(res.Text); text != "" {
		fmt.Fprintln(r.out, noteStyle.Render(truncate(text, 200)))
	}

	r.showCurrent()
	return nil
}

// showCurrent renders the current version inline when the terminal allows.
func (r *REPL) showCurrent() {
	if r.displayer == nil {
		return
	}
	v, ok := r.controller.Current()
	if !ok {
		return
	}
	if err := r.displayer.Show(v); err != nil {
		fmt.Fprintf(r.err, "Warning: %v\n", err)
	}
}

func (r *REPL) printPosition() {
	snap := r.controller.Snapshot()
	fmt.Fprintf(r.out, "At version %d of %d\n", snap.Cursor+1, snap.Length)
}

// LoadCommand starts a new session from a local image file
type LoadCommand struct{}

func (c *LoadCommand) Name() string        { return "load" }
func (c *LoadCommand) Aliases() []string   { return []string{"open", "l"} }
func (c *LoadCommand) Description() string { return "Load an image and start a new session" }
func (c *LoadCommand) Usage() string       { return "load <path>" }

func (c *LoadCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	path := strings.Join(args, " ")
	data, mt, err := image.ReadFile(path)
	if err != nil {
		return err
	}

	if err := r.controller.Upload(ctx, data, mt); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Loaded %s (%s, %s)\n", path, mt, humanize.Bytes(uint64(len(data))))
	r.showCurrent()
	return nil
}

// EditCommand applies a free-form instruction
type EditCommand struct{}

func (c *EditCommand) Name() string        { return "edit" }
func (c *EditCommand) Aliases() []string   { return []string{"gen", "g", "e"} }
func (c *EditCommand) Description() string { return "Edit the current version with an instruction" }
func (c *EditCommand) Usage() string       { return "edit <instruction>" }

func (c *EditCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	return r.generate(ctx, strings.Join(args, " "))
}

// PresetCommand applies a catalog preset
type PresetCommand struct{}

func (c *PresetCommand) Name() string        { return "preset" }
func (c *PresetCommand) Aliases() []string   { return []string{"p"} }
func (c *PresetCommand) Description() string { return "Apply a preset from the catalog" }
func (c *PresetCommand) Usage() string       { return "preset <id>" }

func (c *PresetCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	p, err := r.catalog.Find(args[0])
	if err != nil {
		return fmt.Errorf("%w (type 'presets' to list them)", err)
	}
	fmt.Fprintf(r.out, "Applying preset: %s\n", p.Label)
	return r.generate(ctx, p.Instruction)
}

func parseLevel(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	level, err := strconv.Atoi(args[0])
	if err != nil || level < presets.MinLevel || level > presets.MaxLevel {
		return 0, fmt.Errorf("level must be a number between %d and %d", presets.MinLevel, presets.MaxLevel)
	}
	return level, nil
}

// BlurCommand sets the background blur level
type BlurCommand struct{}

func (c *BlurCommand) Name() string        { return "blur" }
func (c *BlurCommand) Aliases() []string   { return []string{"bokeh"} }
func (c *BlurCommand) Description() string { return "Blur the background (0 keeps it sharp)" }
func (c *BlurCommand) Usage() string       { return "blur <0-100>" }

func (c *BlurCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	level, err := parseLevel(args, c.Usage())
	if err != nil {
		return err
	}
	return r.generate(ctx, presets.BlurInstruction(level))
}

// TextureCommand sets the product texture level
type TextureCommand struct{}

func (c *TextureCommand) Name() string        { return "texture" }
func (c *TextureCommand) Aliases() []string   { return nil }
func (c *TextureCommand) Description() string { return "Enhance surface texture and detail" }
func (c *TextureCommand) Usage() string       { return "texture <0-100>" }

func (c *TextureCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	level, err := parseLevel(args, c.Usage())
	if err != nil {
		return err
	}
	return r.generate(ctx, presets.TextureInstruction(level))
}

// TextCommand overlays text on the image
type TextCommand struct{}

func (c *TextCommand) Name() string        { return "text" }
func (c *TextCommand) Aliases() []string   { return []string{"overlay"} }
func (c *TextCommand) Description() string { return "Add a text overlay" }
func (c *TextCommand) Usage() string       { return "text <overlay>" }

func (c *TextCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	instruction, err := presets.TextOverlayInstruction(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return r.generate(ctx, instruction)
}

// UndoCommand steps back one version
type UndoCommand struct{}

func (c *UndoCommand) Name() string        { return "undo" }
func (c *UndoCommand) Aliases() []string   { return []string{"u"} }
func (c *UndoCommand) Description() string { return "Step back to the previous version" }
func (c *UndoCommand) Usage() string       { return "undo" }

func (c *UndoCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if err := r.controller.Undo(); err != nil {
		return err
	}
	r.printPosition()
	r.showCurrent()
	return nil
}

// RedoCommand steps forward one version
type RedoCommand struct{}

func (c *RedoCommand) Name() string        { return "redo" }
func (c *RedoCommand) Aliases() []string   { return []string{"r"} }
func (c *RedoCommand) Description() string { return "Step forward to the next version" }
func (c *RedoCommand) Usage() string       { return "redo" }

func (c *RedoCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if err := r.controller.Redo(); err != nil {
		return err
	}
	r.printPosition()
	r.showCurrent()
	return nil
}

// ResetCommand discards the session
type ResetCommand struct{}

func (c *ResetCommand) Name() string        { return "reset" }
func (c *ResetCommand) Aliases() []string   { return nil }
func (c *ResetCommand) Description() string { return "Discard the image and all versions" }
func (c *ResetCommand) Usage() string       { return "reset" }

func (c *ResetCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if err := r.controller.Reset(); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Session cleared.")
	return nil
}

// ShowCommand renders the current version
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"view"} }
func (c *ShowCommand) Description() string { return "Display the current version" }
func (c *ShowCommand) Usage() string       { return "show" }

func (c *ShowCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	v, ok := r.controller.Current()
	if !ok {
		return session.ErrNotLoaded
	}

	snap := r.controller.Snapshot()
	fmt.Fprintf(r.out, "Version %d of %d (%s, %s)\n",
		snap.Cursor+1, snap.Length, v.MediaType(), humanize.Bytes(uint64(v.Len())))

	if r.displayer == nil {
		fmt.Fprintln(r.out, dimStyle.Render("Inline images are not supported by this terminal; use 'export' to write the file."))
		return nil
	}
	return r.displayer.Show(v)
}

// CompareCommand shows the original above the current version
type CompareCommand struct{}

func (c *CompareCommand) Name() string        { return "compare" }
func (c *CompareCommand) Aliases() []string   { return []string{"diff"} }
func (c *CompareCommand) Description() string { return "Show the original next to the current version" }
func (c *CompareCommand) Usage() string       { return "compare" }

func (c *CompareCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	original, ok := r.controller.Original()
	if !ok {
		return session.ErrNotLoaded
	}
	current, _ := r.controller.Current()

	if !r.controller.Snapshot().Modified {
		fmt.Fprintln(r.out, "The current version is the original.")
	}
	if r.displayer == nil {
		fmt.Fprintf(r.out, "Original: %s, %s\n", original.MediaType(), humanize.Bytes(uint64(original.Len())))
		fmt.Fprintf(r.out, "Current:  %s, %s\n", current.MediaType(), humanize.Bytes(uint64(current.Len())))
		return nil
	}
	return r.displayer.Compare(original, current)
}

// HistoryCommand lists the versions of the session
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h"} }
func (c *HistoryCommand) Description() string { return "List the versions of this session" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	versions := r.controller.History()
	if len(versions) == 0 {
		fmt.Fprintln(r.out, "No image loaded.")
		return nil
	}

	cursor := r.controller.Snapshot().Cursor
	fmt.Fprintln(r.out, headerStyle.Render("Versions:"))
	for i, v := range versions {
		marker := "  "
		if i == cursor {
			marker = "> "
		}
		label := fmt.Sprintf("edit %d", i)
		if i == 0 {
			label = "original"
		}
		fmt.Fprintf(r.out, "%s%2d  %-10s %-11s %s\n", marker, i+1, label, v.MediaType(), humanize.Bytes(uint64(v.Len())))
	}
	return nil
}

// StatusCommand prints the controller state
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"st"} }
func (c *StatusCommand) Description() string { return "Show session status" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	snap := r.controller.Snapshot()

	fmt.Fprintf(r.out, "Status:   %s\n", snap.Status)
	fmt.Fprintf(r.out, "Model:    %s/%s\n", r.provider, r.model)
	if !snap.Loaded {
		fmt.Fprintln(r.out, "Image:    none")
	} else {
		fmt.Fprintf(r.out, "Session:  %s\n", snap.SessionID)
		fmt.Fprintf(r.out, "Version:  %d of %d (%s)\n", snap.Cursor+1, snap.Length, snap.MediaType)
		fmt.Fprintf(r.out, "Modified: %t  undo: %t  redo: %t\n", snap.Modified, snap.CanUndo, snap.CanRedo)
	}
	if snap.Message != "" {
		fmt.Fprintf(r.out, "Error:    %s\n", snap.Message)
	}
	if snap.Note != "" {
		fmt.Fprintf(r.out, "Note:     %s\n", truncate(snap.Note, 200))
	}
	return nil
}

// ExportCommand writes the current version to disk
type ExportCommand struct{}

func (c *ExportCommand) Name() string      { return "export" }
func (c *ExportCommand) Aliases() []string { return []string{"save", "s"} }
func (c *ExportCommand) Description() string {
	return "Export the current version (png, jpeg or webp at 1, 0.75 or 0.5 scale)"
}
func (c *ExportCommand) Usage() string { return "export [path] [format] [scale]" }

func (c *ExportCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) > 3 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	v, ok := r.controller.Current()
	if !ok {
		return session.ErrNotLoaded
	}

	var path string
	format := r.export.Format
	scale := r.export.Scale

	if len(args) > 0 && args[0] != "-" {
		path = args[0]
		if err := security.ValidateSavePath(path); err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	if len(args) > 1 {
		f, err := models.ParseOutputFormat(args[1])
		if err != nil {
			return err
		}
		format = f
	}
	if len(args) > 2 {
		s, err := strconv.ParseFloat(args[2], 64)
		if err != nil || !models.IsValidScale(s) {
			return fmt.Errorf("%w: %s (valid: %v)", models.ErrInvalidScale, args[2], models.ValidScales())
		}
		scale = s
	}

	written, err := r.saver.SaveExport(v, path, r.export.Prefix, format, scale)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Exported to %s (%s, scale %g)\n", written, format, scale)
	return nil
}

// PresetsCommand lists the catalog
type PresetsCommand struct{}

func (c *PresetsCommand) Name() string        { return "presets" }
func (c *PresetsCommand) Aliases() []string   { return nil }
func (c *PresetsCommand) Description() string { return "List preset categories or the presets in one" }
func (c *PresetsCommand) Usage() string       { return "presets [category]" }

func (c *PresetsCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		for _, cat := range r.catalog.Categories {
			fmt.Fprintf(r.out, "%-12s %s %s\n", cat.ID, cat.Label, dimStyle.Render(fmt.Sprintf("(%d)", len(cat.Presets))))
		}
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, "Use 'presets <category>' to list presets, 'preset <id>' to apply one.")
		return nil
	}

	cat, err := r.catalog.Category(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, headerStyle.Render(cat.Label))
	for _, p := range cat.Presets {
		fmt.Fprintf(r.out, "  %-20s %s\n", p.ID, p.Label)
	}
	return nil
}

// CostCommand displays cost information
type CostCommand struct{}

func (c *CostCommand) Name() string        { return "cost" }
func (c *CostCommand) Aliases() []string   { return []string{"$"} }
func (c *CostCommand) Description() string { return "View cost summary (today, week, month, total, provider, session)" }
func (c *CostCommand) Usage() string       { return "cost <today|week|month|total|provider|session>" }

func (c *CostCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if r.costs == nil {
		fmt.Fprintln(r.out, "Cost tracking is not available.")
		return nil
	}

	subCmd := "total"
	if len(args) > 0 {
		subCmd = strings.ToLower(args[0])
	}

	switch subCmd {
	case "today", "week", "month", "total":
		return c.showPeriod(ctx, r, journal.Period(subCmd))
	case "provider":
		return c.showByProvider(ctx, r)
	case "session":
		return c.showSession(ctx, r)
	default:
		return fmt.Errorf("unknown cost command: %s\nUsage: %s", subCmd, c.Usage())
	}
}

var periodLabels = map[journal.Period]string{
	journal.PeriodToday: "Today's cost",
	journal.PeriodWeek:  "Last 7 days cost",
	journal.PeriodMonth: "This month's cost",
	journal.PeriodTotal: "Total cost",
}

func (c *CostCommand) showPeriod(ctx context.Context, r *REPL, p journal.Period) error {
	summary, err := r.costs.Summary(ctx, p, time.Now())
	if err != nil {
		return err
	}

	if summary.EntryCount == 0 {
		fmt.Fprintln(r.out, "No costs recorded.")
		return nil
	}

	fmt.Fprintf(r.out, "%s: $%.4f (%d image(s))\n", periodLabels[p], summary.TotalCost, summary.ImageCount)
	return nil
}

func (c *CostCommand) showByProvider(ctx context.Context, r *REPL) error {
	summaries, err := r.costs.GetCostByProvider(ctx)
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Fprintln(r.out, "No costs recorded yet.")
		return nil
	}

	fmt.Fprintf(r.out, "%-12s  %-8s  %s\n", "Provider", "Images", "Cost")
	fmt.Fprintln(r.out, strings.Repeat("-", 35))

	var totalCost float64
	var totalImages int
	for _, ps := range summaries {
		fmt.Fprintf(r.out, "%-12s  %-8d  $%.4f\n", ps.Provider, ps.ImageCount, ps.TotalCost)
		totalCost += ps.TotalCost
		totalImages += ps.ImageCount
	}

	fmt.Fprintln(r.out, strings.Repeat("-", 35))
	fmt.Fprintf(r.out, "%-12s  %-8d  $%.4f\n", "Total", totalImages, totalCost)

	return nil
}

func (c *CostCommand) showSession(ctx context.Context, r *REPL) error {
	snap := r.controller.Snapshot()
	if snap.SessionID == "" {
		fmt.Fprintln(r.out, "No active session.")
		return nil
	}

	summary, err := r.costs.GetSessionCost(ctx, snap.SessionID)
	if err != nil {
		return err
	}

	if summary.EntryCount == 0 {
		fmt.Fprintln(r.out, "No costs in current session.")
		return nil
	}

	fmt.Fprintf(r.out, "Session cost: $%.4f (%d image(s))\n", summary.TotalCost, summary.ImageCount)
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, headerStyle.Render("Available commands:"))
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-22s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "  %-22s%s\n", "", dimStyle.Render("Usage: "+cmd.Usage()))
	}

	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
