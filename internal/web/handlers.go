package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/journal"
	"github.com/manash/imgstudio/internal/presets"
	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/internal/session"
	"github.com/manash/imgstudio/pkg/models"
)

var (
	errNoImageField  = errors.New("multipart field \"image\" is required")
	errUploadTooBig  = errors.New("upload is too large")
	errBadIndex      = errors.New("history index must be a non-negative integer")
	errNoSuchVersion = errors.New("no such version")
)

// statusFor maps an intent error to its HTTP status.
func statusFor(err error) int {
	var genErr *provider.GenerationError
	switch {
	case errors.Is(err, session.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrReadFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errUploadTooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoSuchVersion):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmptyInstruction),
		errors.Is(err, presets.ErrAmbiguousSelection),
		errors.Is(err, presets.ErrPresetNotFound),
		errors.Is(err, presets.ErrEmptyText),
		errors.Is(err, models.ErrInvalidFormat),
		errors.Is(err, models.ErrInvalidScale),
		errors.Is(err, errNoImageField),
		errors.Is(err, errBadIndex):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotLoaded),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrNothingToRedo),
		errors.Is(err, session.ErrStaleBase):
		return http.StatusConflict
	case errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"error":   session.UserMessage(err),
		"session": s.controller.Snapshot(),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(c, errUploadTooBig)
			return
		}
		s.fail(c, errNoImageField)
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", session.ErrReadFailure, err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", session.ErrReadFailure, err))
		return
	}

	mt := image.ResolveMediaType(fh.Header.Get("Content-Type"), data)
	if err := s.controller.Upload(c.Request.Context(), data, mt); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

type generateResponse struct {
	Session    session.Snapshot    `json:"session"`
	Provider   models.ProviderType `json:"provider,omitempty"`
	Model      string              `json:"model,omitempty"`
	Cost       float64             `json:"cost"`
	DurationMs int64               `json:"duration_ms"`
	Text       string              `json:"text,omitempty"`
}

func (s *Server) generate(c *gin.Context) {
	var sel presets.Selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "request body must be a JSON object",
			"session": s.controller.Snapshot(),
		})
		return
	}
	if err := sel.Validate(); err != nil {
		s.fail(c, err)
		return
	}
	instruction, err := sel.Resolve(s.catalog)
	if err != nil {
		s.fail(c, err)
		return
	}

	// The generation outlives a client disconnect; the gateway timeout
	// still bounds it.
	res, err := s.controller.Generate(context.WithoutCancel(c.Request.Context()), instruction)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, generateResponse{
		Session:    s.controller.Snapshot(),
		Provider:   res.Provider,
		Model:      res.Model,
		Cost:       res.Cost,
		DurationMs: res.Duration.Milliseconds(),
		Text:       res.Text,
	})
}

func (s *Server) undo(c *gin.Context) {
	s.intent(c, s.controller.Undo)
}

func (s *Server) redo(c *gin.Context) {
	s.intent(c, s.controller.Redo)
}

func (s *Server) reset(c *gin.Context) {
	s.intent(c, s.controller.Reset)
}

func (s *Server) dismiss(c *gin.Context) {
	s.controller.DismissError()
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

func (s *Server) intent(c *gin.Context, fn func() error) {
	if err := fn(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

func (s *Server) currentImage(c *gin.Context) {
	v, ok := s.controller.Current()
	if !ok {
		s.fail(c, session.ErrNotLoaded)
		return
	}
	writeVersion(c, v)
}

func (s *Server) originalImage(c *gin.Context) {
	v, ok := s.controller.Original()
	if !ok {
		s.fail(c, session.ErrNotLoaded)
		return
	}
	writeVersion(c, v)
}

func (s *Server) historyImage(c *gin.Context) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		s.fail(c, errBadIndex)
		return
	}
	if !s.controller.Snapshot().Loaded {
		s.fail(c, session.ErrNotLoaded)
		return
	}
	v, ok := s.controller.Version(i)
	if !ok {
		s.fail(c, fmt.Errorf("%w: %d", errNoSuchVersion, i))
		return
	}
	writeVersion(c, v)
}

func writeVersion(c *gin.Context, v models.ImageVersion) {
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, v.MediaType().String(), v.Bytes())
}

func (s *Server) export(c *gin.Context) {
	v, ok := s.controller.Current()
	if !ok {
		s.fail(c, session.ErrNotLoaded)
		return
	}

	format := s.format
	if q := c.Query("format"); q != "" {
		f, err := models.ParseOutputFormat(q)
		if err != nil {
			s.fail(c, err)
			return
		}
		format = f
	}

	scale := s.scale
	if q := c.Query("scale"); q != "" {
		f, err := strconv.ParseFloat(q, 64)
		if err != nil || !models.IsValidScale(f) {
			s.fail(c, fmt.Errorf("%w: %s", models.ErrInvalidScale, q))
			return
		}
		scale = f
	}

	data, err := image.Export(v, format, scale)
	if err != nil {
		s.fail(c, err)
		return
	}

	name := image.ExportFilename(s.prefix, time.Now(), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, format.MediaType().String(), data)
}

func (s *Server) listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog)
}

type generationView struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	BaseIndex   int       `json:"base_index"`
	ResultIndex int       `json:"result_index"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	MediaType   string    `json:"media_type,omitempty"`
	Bytes       int       `json:"bytes"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (s *Server) listGenerations(c *gin.Context) {
	views := []generationView{}
	id := s.controller.Snapshot().SessionID
	if s.journal == nil || id == "" {
		c.JSON(http.StatusOK, gin.H{"session_id": id, "generations": views})
		return
	}

	gens, err := s.journal.ListGenerations(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	for _, g := range gens {
		views = append(views, generationView{
			ID:          g.ID,
			Instruction: g.Instruction,
			BaseIndex:   g.BaseIndex,
			ResultIndex: g.ResultIndex,
			Provider:    string(g.Provider),
			Model:       g.Model,
			MediaType:   string(g.MediaType),
			Bytes:       g.Bytes,
			DurationMs:  g.Duration.Milliseconds(),
			Error:       g.Err,
			FinishedAt:  g.FinishedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "generations": views})
}

func (s *Server) costs(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusOK, gin.H{"total": gin.H{}, "providers": []any{}})
		return
	}

	ctx := c.Request.Context()
	total, err := s.journal.GetTotalCost(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	byProvider, err := s.journal.GetCostByProvider(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	if byProvider == nil {
		byProvider = []journal.ProviderCostSummary{}
	}
	resp := gin.H{"total": total, "providers": byProvider}
	if id := s.controller.Snapshot().SessionID; id != "" {
		sessCost, err := s.journal.GetSessionCost(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		resp["session"] = sessCost
	}
	c.JSON(http.StatusOK, resp)
}
