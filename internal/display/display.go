package display

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/pkg/models"
)

var ErrNothingToShow = errors.New("no image to show")

// Displayer renders image versions inline with the kitty graphics protocol.
type Displayer struct {
	out io.Writer
	// columns limits the rendered width in terminal cells; 0 lets the
	// terminal use the image's own size.
	columns int
}

func New(out io.Writer) *Displayer {
	return &Displayer{out: out}
}

// WithColumns caps the rendered width at cols terminal cells.
func (d *Displayer) WithColumns(cols int) *Displayer {
	d.columns = max(cols, 0)
	return d
}

// Show renders v. The protocol only carries PNG, so other types are
// transcoded first.
func (d *Displayer) Show(v models.ImageVersion) error {
	if v.Len() == 0 {
		return ErrNothingToShow
	}

	data := v.Bytes()
	if v.MediaType() != models.MediaPNG {
		png, err := image.Export(v, models.FormatPNG, 1.0)
		if err != nil {
			return fmt.Errorf("failed to convert %s for display: %w", v.MediaType(), err)
		}
		data = png
	}

	enc := NewKittyEncoder(d.out).WithColumns(d.columns)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	fmt.Fprintln(d.out)
	return nil
}

// Compare renders the original above the current version.
func (d *Displayer) Compare(original, current models.ImageVersion) error {
	fmt.Fprintln(d.out, "Before:")
	if err := d.Show(original); err != nil {
		return fmt.Errorf("failed to show original: %w", err)
	}
	fmt.Fprintln(d.out, "After:")
	if err := d.Show(current); err != nil {
		return fmt.Errorf("failed to show current version: %w", err)
	}
	return nil
}

// Supported reports whether f is a terminal that understands the kitty
// graphics protocol.
func Supported(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) && IsTerminalSupported()
}

// IsTerminalSupported inspects the environment for a terminal known to
// implement the kitty graphics protocol.
func IsTerminalSupported() bool {
	termProgram := strings.ToLower(os.Getenv("TERM_PROGRAM"))
	if slices.Contains([]string{"kitty", "ghostty", "iterm.app", "wezterm"}, termProgram) {
		return true
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("ITERM_SESSION_ID") != "" {
		return true
	}

	t := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}

// Width returns the column count of f, or fallback when f is not a terminal.
func Width(f *os.File, fallback int) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
