package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/pkg/models"
)

// Gateway produces a new image version from a base version and an instruction.
type Gateway interface {
	Generate(ctx context.Context, base models.ImageVersion, instruction string) (*provider.Result, error)
}

// SessionInfo describes a freshly loaded session.
type SessionInfo struct {
	ID        string
	MediaType models.MediaType
	Bytes     int
	StartedAt time.Time
}

// GenerationRecord describes one finished generation attempt.
type GenerationRecord struct {
	ID          string
	SessionID   string
	Instruction string
	BaseIndex   int
	// ResultIndex is the history index of the committed version, or -1.
	ResultIndex int
	Provider    models.ProviderType
	Model       string
	MediaType   models.MediaType
	Bytes       int
	Text        string
	Cost        float64
	Duration    time.Duration
	Err         string
	FinishedAt  time.Time
}

func (r GenerationRecord) Succeeded() bool {
	return r.Err == ""
}

// Recorder is told about sessions and generations. Recorder errors are logged
// and never reach the user.
type Recorder interface {
	SessionStarted(ctx context.Context, info SessionInfo) error
	GenerationFinished(ctx context.Context, rec GenerationRecord) error
}

// Snapshot is a read-only view of the controller for presentation.
type Snapshot struct {
	SessionID string           `json:"session_id,omitempty"`
	Status    Status           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Loaded    bool             `json:"loaded"`
	Cursor    int              `json:"cursor"`
	Length    int              `json:"length"`
	CanUndo   bool             `json:"can_undo"`
	CanRedo   bool             `json:"can_redo"`
	Modified  bool             `json:"modified"`
	MediaType models.MediaType `json:"media_type,omitempty"`
	// Pending is the instruction of the generation in flight.
	Pending string `json:"pending,omitempty"`
	// Note is the text the model returned with the last successful edit.
	Note string `json:"note,omitempty"`
}

// Controller turns user intents into session mutations and gateway calls.
// At most one generation runs at a time; the mutex is never held across the
// gateway call.
type Controller struct {
	mu        sync.Mutex
	sess      *Session
	status    Status
	message   string
	sessionID string
	pending   string
	note      string

	gateway  Gateway
	flight   *semaphore.Weighted
	recorder Recorder
	onChange func(Snapshot)
}

func NewController(gw Gateway) *Controller {
	return &Controller{
		sess:    New(),
		status:  StatusIdle,
		gateway: gw,
		flight:  semaphore.NewWeighted(1),
	}
}

func (c *Controller) SetRecorder(r Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// OnChange registers fn to receive a snapshot after every state change. fn
// runs without the controller lock held.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Upload validates and loads a new original image, discarding the current
// session. The previous session survives a failed upload.
func (c *Controller) Upload(ctx context.Context, data []byte, mediaType models.MediaType) error {
	if !c.flight.TryAcquire(1) {
		return ErrBusy
	}
	defer c.flight.Release(1)

	c.mu.Lock()
	c.status = StatusUploading
	c.message = ""
	c.mu.Unlock()
	c.notify()

	v := models.NewImageVersion(data, mediaType)

	c.mu.Lock()
	if err := c.sess.Load(v); err != nil {
		c.fail(err)
		c.mu.Unlock()
		c.notify()
		log.Warn().Err(err).Str("media_type", mediaType.String()).Int("bytes", len(data)).Msg("upload rejected")
		return err
	}
	c.sessionID = uuid.NewString()
	c.status = StatusIdle
	c.note = ""
	info := SessionInfo{ID: c.sessionID, MediaType: v.MediaType(), Bytes: v.Len(), StartedAt: time.Now()}
	rec := c.recorder
	c.mu.Unlock()
	c.notify()

	log.Info().Str("session", info.ID).Str("media_type", info.MediaType.String()).Int("bytes", info.Bytes).Msg("image loaded")

	if rec != nil {
		if err := rec.SessionStarted(ctx, info); err != nil {
			log.Error().Err(err).Str("session", info.ID).Msg("failed to record session")
		}
	}
	return nil
}

// Generate edits the current version. On success the result is committed on
// top of the cursor captured at the start of the call.
func (c *Controller) Generate(ctx context.Context, instruction string) (*provider.Result, error) {
	if !c.flight.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer c.flight.Release(1)

	c.mu.Lock()
	if !c.sess.Loaded() {
		c.mu.Unlock()
		return nil, ErrNotLoaded
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		c.fail(ErrEmptyInstruction)
		c.mu.Unlock()
		c.notify()
		return nil, ErrEmptyInstruction
	}

	base, _ := c.sess.Current()
	baseIndex := c.sess.Cursor()
	sessionID := c.sessionID
	c.status = StatusProcessing
	c.message = ""
	c.pending = instruction
	c.mu.Unlock()
	c.notify()

	log.Info().Str("session", sessionID).Int("base", baseIndex).Str("instruction", instruction).Msg("generation started")

	started := time.Now()
	res, err := c.gateway.Generate(ctx, base, instruction)

	rec := GenerationRecord{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Instruction: instruction,
		BaseIndex:   baseIndex,
		ResultIndex: -1,
		Duration:    time.Since(started),
		FinishedAt:  time.Now(),
	}

	c.mu.Lock()
	c.pending = ""
	if err == nil && c.sessionID != sessionID {
		err = ErrStaleBase
	}
	if err == nil {
		err = c.sess.CommitFrom(baseIndex, res.Version)
	}
	if err != nil {
		c.fail(err)
	} else {
		c.status = StatusSuccess
		c.note = res.Text
		rec.ResultIndex = c.sess.Cursor()
	}
	recorder := c.recorder
	c.mu.Unlock()
	c.notify()

	if res != nil {
		rec.Provider = res.Provider
		rec.Model = res.Model
		rec.MediaType = res.Version.MediaType()
		rec.Bytes = res.Version.Len()
		rec.Text = res.Text
		rec.Cost = res.Cost
	}
	if err != nil {
		rec.Err = err.Error()
		log.Warn().Err(err).Str("session", sessionID).Dur("elapsed", rec.Duration).Msg("generation failed")
	} else {
		log.Info().Str("session", sessionID).Int("version", rec.ResultIndex).Dur("elapsed", rec.Duration).Msg("generation committed")
	}

	if recorder != nil {
		if rerr := recorder.GenerationFinished(context.WithoutCancel(ctx), rec); rerr != nil {
			log.Error().Err(rerr).Str("session", sessionID).Msg("failed to record generation")
		}
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Controller) Undo() error {
	c.mu.Lock()
	if c.status.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	moved := c.sess.Undo()
	c.mu.Unlock()

	if !moved {
		return ErrNothingToUndo
	}
	c.notify()
	return nil
}

func (c *Controller) Redo() error {
	c.mu.Lock()
	if c.status.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	moved := c.sess.Redo()
	c.mu.Unlock()

	if !moved {
		return ErrNothingToRedo
	}
	c.notify()
	return nil
}

// Reset discards the session and any error message.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.status.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.sess.Reset()
	c.sessionID = ""
	c.status = StatusIdle
	c.message = ""
	c.note = ""
	c.mu.Unlock()

	c.notify()
	return nil
}

// DismissError clears the message; an error status returns to idle.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.message = ""
	if c.status == StatusError {
		c.status = StatusIdle
	}
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) Current() (models.ImageVersion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Current()
}

func (c *Controller) Original() (models.ImageVersion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Original()
}

// Version returns history[i].
func (c *Controller) Version(i int) (models.ImageVersion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.At(i)
}

func (c *Controller) History() []models.ImageVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.History()
}

// fail records err as the user-facing message. Caller holds mu.
func (c *Controller) fail(err error) {
	c.status = StatusError
	c.message = UserMessage(err)
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: c.sessionID,
		Status:    c.status,
		Message:   c.message,
		Loaded:    c.sess.Loaded(),
		Cursor:    c.sess.Cursor(),
		Length:    c.sess.Len(),
		CanUndo:   c.sess.CanUndo(),
		CanRedo:   c.sess.CanRedo(),
		MediaType: c.sess.MediaType(),
		Pending:   c.pending,
		Note:      c.note,
	}
	snap.Modified = snap.Loaded && snap.Cursor > 0
	return snap
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// UserMessage is the text shown to the user for a failed intent.
func UserMessage(err error) string {
	var genErr *provider.GenerationError
	switch {
	case errors.As(err, &genErr):
		return genErr.Error()
	case errors.Is(err, ErrUnsupportedMediaType):
		return "Unsupported file type. Please upload a PNG, JPEG or WEBP image."
	case errors.Is(err, ErrReadFailure):
		return "The file could not be read as an image."
	case errors.Is(err, ErrEmptyInstruction):
		return "Please describe the edit you want."
	default:
		return err.Error()
	}
}
