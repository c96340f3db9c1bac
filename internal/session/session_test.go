package session

import (
	"bytes"
	"errors"
	goimage "image"
	"image/color"
	"image/png"
	"testing"

	"github.com/manash/imgstudio/pkg/models"
)

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := goimage.NewNRGBA(goimage.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func version(t *testing.T, shade uint8) models.ImageVersion {
	t.Helper()
	return models.NewImageVersion(pngBytes(t, shade), models.MediaPNG)
}

func loaded(t *testing.T, shades ...uint8) *Session {
	t.Helper()
	s := New()
	if err := s.Load(version(t, shades[0])); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, sh := range shades[1:] {
		if err := s.Commit(version(t, sh)); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}
	return s
}

func TestSession_Empty(t *testing.T) {
	s := New()
	if s.Loaded() || s.CanUndo() || s.CanRedo() {
		t.Error("fresh session should have nothing loaded")
	}
	if _, ok := s.Current(); ok {
		t.Error("Current() on empty session should report false")
	}
	if _, ok := s.Original(); ok {
		t.Error("Original() on empty session should report false")
	}
	if err := s.Commit(version(t, 1)); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Commit() error = %v, want ErrNotLoaded", err)
	}
	if s.Undo() || s.Redo() {
		t.Error("Undo/Redo on empty session should be no-ops")
	}
}

func TestSession_Load(t *testing.T) {
	s := loaded(t, 10)

	if !s.Loaded() || s.Len() != 1 || s.Cursor() != 0 {
		t.Fatalf("after Load: len=%d cursor=%d", s.Len(), s.Cursor())
	}
	if s.CanUndo() || s.CanRedo() {
		t.Error("single version session should not undo or redo")
	}
	cur, _ := s.Current()
	orig, _ := s.Original()
	if !cur.Equal(orig) {
		t.Error("current should be the original right after load")
	}
	if s.MediaType() != models.MediaPNG {
		t.Errorf("MediaType() = %q", s.MediaType())
	}
}

func TestSession_LoadFailureKeepsPrevious(t *testing.T) {
	tests := []struct {
		name    string
		v       models.ImageVersion
		wantErr error
	}{
		{"gif", models.NewImageVersion([]byte("GIF89a"), "image/gif"), ErrUnsupportedMediaType},
		{"pdf", models.NewImageVersion([]byte("%PDF-1.4"), "application/pdf"), ErrUnsupportedMediaType},
		{"corrupt png", models.NewImageVersion([]byte("\x89PNG\r\n\x1a\nbroken"), models.MediaPNG), ErrReadFailure},
		{"empty", models.NewImageVersion(nil, models.MediaJPEG), ErrReadFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loaded(t, 1, 2)

			err := s.Load(tt.v)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}
			if s.Len() != 2 || s.Cursor() != 1 {
				t.Errorf("previous session changed: len=%d cursor=%d", s.Len(), s.Cursor())
			}
		})
	}
}

func TestSession_UndoRedo(t *testing.T) {
	a, b, c := version(t, 1), version(t, 2), version(t, 3)
	s := loaded(t, 1, 2, 3)

	if !s.Undo() {
		t.Fatal("Undo() should move from c")
	}
	if cur, _ := s.Current(); !cur.Equal(b) {
		t.Error("after one undo current should be b")
	}
	if !s.CanRedo() {
		t.Error("CanRedo() should be true after undo")
	}
	s.Undo()
	if cur, _ := s.Current(); !cur.Equal(a) {
		t.Error("after two undos current should be a")
	}
	if s.Undo() {
		t.Error("Undo() at the original should be a no-op")
	}
	if s.Cursor() != 0 {
		t.Errorf("cursor = %d after no-op undo", s.Cursor())
	}

	s.Redo()
	s.Redo()
	if cur, _ := s.Current(); !cur.Equal(c) {
		t.Error("after two redos current should be c")
	}
	if s.Redo() {
		t.Error("Redo() at the head should be a no-op")
	}
	if s.Len() != 3 {
		t.Errorf("undo/redo must not change history length, got %d", s.Len())
	}
}

func TestSession_CommitTruncatesRedoBranch(t *testing.T) {
	a, d := version(t, 1), version(t, 4)
	s := loaded(t, 1, 2, 3)

	s.Undo()
	s.Undo()
	if err := s.Commit(d); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	hist := s.History()
	if len(hist) != 2 || !hist[0].Equal(a) || !hist[1].Equal(d) {
		t.Fatalf("history = %d versions, want [a d]", len(hist))
	}
	if s.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", s.Cursor())
	}
	if s.CanRedo() {
		t.Error("redo branch should be gone")
	}
}

func TestSession_CommitFrom(t *testing.T) {
	s := loaded(t, 1, 2)

	if err := s.CommitFrom(5, version(t, 9)); !errors.Is(err, ErrStaleBase) {
		t.Errorf("CommitFrom(5) error = %v, want ErrStaleBase", err)
	}
	if err := s.CommitFrom(-1, version(t, 9)); !errors.Is(err, ErrStaleBase) {
		t.Errorf("CommitFrom(-1) error = %v, want ErrStaleBase", err)
	}

	jpeg := models.NewImageVersion([]byte("jpeg"), models.MediaJPEG)
	if err := s.CommitFrom(0, jpeg); err != nil {
		t.Fatalf("CommitFrom(0) error = %v", err)
	}
	if s.Len() != 2 || s.Cursor() != 1 {
		t.Errorf("len=%d cursor=%d, want 2/1", s.Len(), s.Cursor())
	}
	if s.MediaType() != models.MediaJPEG {
		t.Errorf("MediaType() = %q, want type of newest version", s.MediaType())
	}
}

func TestSession_HistoryIsCopy(t *testing.T) {
	s := loaded(t, 1, 2)
	hist := s.History()
	hist[0] = models.ImageVersion{}

	if orig, _ := s.Original(); orig.IsZero() {
		t.Error("mutating History() result changed the session")
	}
}

func TestSession_At(t *testing.T) {
	s := loaded(t, 1, 2)
	if _, ok := s.At(1); !ok {
		t.Error("At(1) should exist")
	}
	if _, ok := s.At(2); ok {
		t.Error("At(2) should not exist")
	}
	if _, ok := s.At(-1); ok {
		t.Error("At(-1) should not exist")
	}
}

func TestSession_Reset(t *testing.T) {
	s := loaded(t, 1, 2)
	s.Reset()
	if s.Loaded() || s.Len() != 0 || s.MediaType() != "" {
		t.Error("Reset() should clear the session")
	}
}

func TestStatus_Busy(t *testing.T) {
	tests := []struct {
		s    Status
		busy bool
	}{
		{StatusIdle, false},
		{StatusUploading, true},
		{StatusProcessing, true},
		{StatusError, false},
		{StatusSuccess, false},
	}
	for _, tt := range tests {
		if got := tt.s.Busy(); got != tt.busy {
			t.Errorf("%s.Busy() = %v, want %v", tt.s, got, tt.busy)
		}
	}
}
