package presets

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestSelection_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sel     Selection
		wantErr bool
	}{
		{"instruction", Selection{Instruction: "add fog"}, false},
		{"preset", Selection{Preset: "misty_forest"}, false},
		{"blur zero", Selection{Blur: intPtr(0)}, false},
		{"texture", Selection{Texture: intPtr(40)}, false},
		{"text", Selection{Text: "Sale"}, false},
		{"nothing", Selection{}, true},
		{"blank instruction", Selection{Instruction: "   "}, true},
		{"two fields", Selection{Instruction: "add fog", Blur: intPtr(20)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sel.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrAmbiguousSelection) {
				t.Errorf("Validate() error = %v, want ErrAmbiguousSelection", err)
			}
		})
	}
}

func TestSelection_Resolve(t *testing.T) {
	catalog := Default()
	forest, err := catalog.Find("misty_forest")
	if err != nil {
		t.Fatal(err)
	}
	overlay, err := TextOverlayInstruction("Sale")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		sel     Selection
		want    string
		wantErr error
	}{
		{"instruction is trimmed", Selection{Instruction: "  add fog "}, "add fog", nil},
		{"preset", Selection{Preset: "misty_forest"}, forest.Instruction, nil},
		{"blur", Selection{Blur: intPtr(90)}, BlurInstruction(90), nil},
		{"texture", Selection{Texture: intPtr(10)}, TextureInstruction(10), nil},
		{"text", Selection{Text: "Sale"}, overlay, nil},
		{"unknown preset", Selection{Preset: "nope"}, "", ErrPresetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sel.Resolve(catalog)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelection_Label(t *testing.T) {
	tests := []struct {
		sel  Selection
		want string
	}{
		{Selection{Instruction: "add fog"}, "add fog"},
		{Selection{Preset: "misty_forest"}, "preset misty_forest"},
		{Selection{Blur: intPtr(30)}, "blur 30"},
		{Selection{Texture: intPtr(70)}, "texture 70"},
		{Selection{Text: "Sale"}, `text "Sale"`},
	}
	for _, tt := range tests {
		if got := tt.sel.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}
