package session

import (
	"fmt"

	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/pkg/models"
)

// Session is the linear edit history of one uploaded image. history[0] is
// the original and cursor always indexes a valid element once loaded.
//
// A Session is not safe for concurrent use; Controller serialises access.
type Session struct {
	history   []models.ImageVersion
	cursor    int
	mediaType models.MediaType
}

func New() *Session {
	return &Session{}
}

// Load replaces the session with a single original version. On failure the
// previous session is kept.
func (s *Session) Load(v models.ImageVersion) error {
	mt := v.MediaType()
	if !mt.IsAccepted() {
		return fmt.Errorf("%w: %q (accepted: %v)", ErrUnsupportedMediaType, mt, models.AcceptedMediaTypes())
	}
	if _, err := image.Probe(v.Bytes(), mt); err != nil {
		return fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	s.history = []models.ImageVersion{v}
	s.cursor = 0
	s.mediaType = mt
	return nil
}

// Commit drops any redo branch after the cursor and appends v.
func (s *Session) Commit(v models.ImageVersion) error {
	return s.CommitFrom(s.cursor, v)
}

// CommitFrom truncates history to [0..base] and appends v. base is the
// cursor captured when the generation producing v started.
func (s *Session) CommitFrom(base int, v models.ImageVersion) error {
	if !s.Loaded() {
		return ErrNotLoaded
	}
	if base < 0 || base >= len(s.history) {
		return fmt.Errorf("%w: index %d, history length %d", ErrStaleBase, base, len(s.history))
	}

	s.history = append(s.history[:base+1:base+1], v)
	s.cursor = len(s.history) - 1
	s.mediaType = v.MediaType()
	return nil
}

// Undo moves the cursor back one step. It reports whether it moved.
func (s *Session) Undo() bool {
	if !s.CanUndo() {
		return false
	}
	s.cursor--
	return true
}

// Redo moves the cursor forward one step. It reports whether it moved.
func (s *Session) Redo() bool {
	if !s.CanRedo() {
		return false
	}
	s.cursor++
	return true
}

func (s *Session) Reset() {
	s.history = nil
	s.cursor = 0
	s.mediaType = ""
}

func (s *Session) Loaded() bool {
	return len(s.history) > 0
}

func (s *Session) CanUndo() bool {
	return s.Loaded() && s.cursor > 0
}

func (s *Session) CanRedo() bool {
	return s.Loaded() && s.cursor < len(s.history)-1
}

// Current returns the version at the cursor, or false when nothing is loaded.
func (s *Session) Current() (models.ImageVersion, bool) {
	if !s.Loaded() {
		return models.ImageVersion{}, false
	}
	return s.history[s.cursor], true
}

func (s *Session) Original() (models.ImageVersion, bool) {
	if !s.Loaded() {
		return models.ImageVersion{}, false
	}
	return s.history[0], true
}

func (s *Session) At(i int) (models.ImageVersion, bool) {
	if i < 0 || i >= len(s.history) {
		return models.ImageVersion{}, false
	}
	return s.history[i], true
}

func (s *Session) Len() int {
	return len(s.history)
}

// Cursor is meaningless when nothing is loaded.
func (s *Session) Cursor() int {
	return s.cursor
}

// MediaType is the type of the most recently produced version.
func (s *Session) MediaType() models.MediaType {
	return s.mediaType
}

// History returns the versions in order. The slice is a copy; versions are
// immutable.
func (s *Session) History() []models.ImageVersion {
	out := make([]models.ImageVersion, len(s.history))
	copy(out, s.history)
	return out
}
