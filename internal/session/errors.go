package session

import (
	"errors"

	"github.com/manash/imgstudio/internal/provider"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrReadFailure          = errors.New("could not read image")
	ErrNotLoaded            = errors.New("no image loaded")
	ErrStaleBase            = errors.New("base version is no longer in history")
	ErrBusy                 = errors.New("a generation is already in progress")
	ErrNothingToUndo        = errors.New("nothing to undo")
	ErrNothingToRedo        = errors.New("nothing to redo")
	ErrEmptyInstruction     = provider.ErrEmptyInstruction
)
