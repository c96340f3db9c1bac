package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/manash/imgstudio/internal/presets"
)

var ErrNoSteps = errors.New("no steps found in recipe")

// Step is one edit of a recipe.
type Step struct {
	Index int
	presets.Selection
}

func ParseFile(path string) ([]Step, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(file)
	case ".yaml", ".yml":
		return ParseYAML(file)
	case ".txt", "":
		return ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt, .json or .yaml", ext)
	}
}

// ParseText reads one instruction per line. Blank lines and lines starting
// with # are skipped.
func ParseText(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	index := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		index++
		steps = append(steps, Step{
			Index:     index,
			Selection: presets.Selection{Instruction: line},
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(steps) == 0 {
		return nil, ErrNoSteps
	}

	return steps, nil
}

func ParseJSON(r io.Reader) ([]Step, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var raw []presets.Selection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return toSteps(raw)
}

func ParseYAML(r io.Reader) ([]Step, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var raw []presets.Selection
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return toSteps(raw)
}

func toSteps(raw []presets.Selection) ([]Step, error) {
	if len(raw) == 0 {
		return nil, ErrNoSteps
	}

	steps := make([]Step, len(raw))
	for i, sel := range raw {
		if err := sel.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		steps[i] = Step{Index: i + 1, Selection: sel}
	}

	return steps, nil
}
