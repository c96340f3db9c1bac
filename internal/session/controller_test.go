package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/pkg/models"
)

type fakeGateway struct {
	mu      sync.Mutex
	calls   []string
	bases   []models.ImageVersion
	results []models.ImageVersion
	err     error

	// when set, Generate signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func (g *fakeGateway) Generate(ctx context.Context, base models.ImageVersion, instruction string) (*provider.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, instruction)
	g.bases = append(g.bases, base)
	n := len(g.calls)
	g.mu.Unlock()

	if g.started != nil {
		g.started <- struct{}{}
		<-g.release
	}
	if g.err != nil {
		return nil, g.err
	}
	v := g.results[(n-1)%len(g.results)]
	return &provider.Result{
		Version:  v,
		Provider: models.ProviderGemini,
		Model:    "gemini-2.5-flash-image",
		Text:     "done: " + instruction,
		Cost:     0.039,
	}, nil
}

type fakeRecorder struct {
	mu          sync.Mutex
	sessions    []SessionInfo
	generations []GenerationRecord
	err         error
}

func (r *fakeRecorder) SessionStarted(_ context.Context, info SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, info)
	return r.err
}

func (r *fakeRecorder) GenerationFinished(_ context.Context, rec GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations = append(r.generations, rec)
	return r.err
}

func uploaded(t *testing.T, gw Gateway) *Controller {
	t.Helper()
	c := NewController(gw)
	if err := c.Upload(context.Background(), pngBytes(t, 1), models.MediaPNG); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return c
}

func TestController_FogThenNeon(t *testing.T) {
	p0, p1, p2 := version(t, 1), version(t, 2), version(t, 3)
	gw := &fakeGateway{results: []models.ImageVersion{p1, p2}}
	rec := &fakeRecorder{}

	c := NewController(gw)
	c.SetRecorder(rec)
	if err := c.Upload(context.Background(), p0.Bytes(), models.MediaPNG); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if _, err := c.Generate(context.Background(), "add fog"); err != nil {
		t.Fatalf("Generate(fog) error = %v", err)
	}
	res, err := c.Generate(context.Background(), "make it neon")
	if err != nil {
		t.Fatalf("Generate(neon) error = %v", err)
	}
	if res.Text != "done: make it neon" {
		t.Errorf("result text = %q", res.Text)
	}

	snap := c.Snapshot()
	if snap.Length != 3 || snap.Cursor != 2 || snap.Status != StatusSuccess {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.Modified || !snap.CanUndo || snap.CanRedo {
		t.Errorf("predicates wrong: %+v", snap)
	}
	if !gw.bases[0].Equal(p0) || !gw.bases[1].Equal(p1) {
		t.Error("each generation should be based on the current version")
	}

	if err := c.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	cur, _ := c.Current()
	if !cur.Equal(p1) {
		t.Error("after undo current should be the fog version")
	}
	if !c.Snapshot().CanRedo {
		t.Error("CanRedo should be true after undo")
	}

	if len(rec.sessions) != 1 || len(rec.generations) != 2 {
		t.Fatalf("recorder saw %d sessions, %d generations", len(rec.sessions), len(rec.generations))
	}
	g := rec.generations[1]
	if !g.Succeeded() || g.BaseIndex != 1 || g.ResultIndex != 2 || g.SessionID != snap.SessionID {
		t.Errorf("generation record = %+v", g)
	}
}

func TestController_GenerateNotLoaded(t *testing.T) {
	gw := &fakeGateway{}
	c := NewController(gw)

	if _, err := c.Generate(context.Background(), "add fog"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Generate() error = %v, want ErrNotLoaded", err)
	}
	if len(gw.calls) != 0 {
		t.Error("gateway should not be called without an image")
	}
	if c.Snapshot().Status != StatusIdle {
		t.Errorf("status = %s, want idle", c.Snapshot().Status)
	}
}

func TestController_GenerateEmptyInstruction(t *testing.T) {
	gw := &fakeGateway{}
	c := uploaded(t, gw)

	_, err := c.Generate(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyInstruction) {
		t.Fatalf("Generate() error = %v, want ErrEmptyInstruction", err)
	}
	snap := c.Snapshot()
	if snap.Status != StatusError || snap.Message == "" {
		t.Errorf("snapshot = %+v, want error with message", snap)
	}
	if snap.Length != 1 || len(gw.calls) != 0 {
		t.Error("empty instruction must not reach the gateway or change history")
	}
}

func TestController_FailedGenerateLeavesSession(t *testing.T) {
	gw := &fakeGateway{results: []models.ImageVersion{version(t, 2)}}
	c := uploaded(t, gw)
	if _, err := c.Generate(context.Background(), "add fog"); err != nil {
		t.Fatal(err)
	}
	rec := &fakeRecorder{}
	c.SetRecorder(rec)

	gw.err = &provider.GenerationError{Message: "model returned no image"}
	_, err := c.Generate(context.Background(), "make it neon")
	if err == nil {
		t.Fatal("Generate() should fail")
	}

	snap := c.Snapshot()
	if snap.Length != 2 || snap.Cursor != 1 {
		t.Errorf("history changed on failure: %+v", snap)
	}
	if snap.Status != StatusError || snap.Message != "model returned no image" {
		t.Errorf("status = %s, message = %q", snap.Status, snap.Message)
	}
	if len(rec.generations) != 1 || rec.generations[0].Succeeded() || rec.generations[0].ResultIndex != -1 {
		t.Errorf("failed generation record = %+v", rec.generations)
	}

	c.DismissError()
	snap = c.Snapshot()
	if snap.Status != StatusIdle || snap.Message != "" {
		t.Errorf("after DismissError: %+v", snap)
	}
}

func TestController_BusyRejectsIntents(t *testing.T) {
	gw := &fakeGateway{
		results: []models.ImageVersion{version(t, 2)},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := uploaded(t, gw)

	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background(), "add fog")
		done <- err
	}()
	<-gw.started

	snap := c.Snapshot()
	if snap.Status != StatusProcessing || snap.Pending != "add fog" {
		t.Errorf("in-flight snapshot = %+v", snap)
	}

	if _, err := c.Generate(context.Background(), "make it neon"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Generate() error = %v, want ErrBusy", err)
	}
	if err := c.Upload(context.Background(), pngBytes(t, 5), models.MediaPNG); !errors.Is(err, ErrBusy) {
		t.Errorf("Upload() error = %v, want ErrBusy", err)
	}
	if err := c.Undo(); !errors.Is(err, ErrBusy) {
		t.Errorf("Undo() error = %v, want ErrBusy", err)
	}
	if err := c.Redo(); !errors.Is(err, ErrBusy) {
		t.Errorf("Redo() error = %v, want ErrBusy", err)
	}
	if err := c.Reset(); !errors.Is(err, ErrBusy) {
		t.Errorf("Reset() error = %v, want ErrBusy", err)
	}
	if c.Snapshot().Status != StatusProcessing {
		t.Error("rejected intents must not change status")
	}

	close(gw.release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight Generate() error = %v", err)
	}
	if len(gw.calls) != 1 {
		t.Errorf("gateway called %d times, want 1", len(gw.calls))
	}
	if snap := c.Snapshot(); snap.Length != 2 || snap.Status != StatusSuccess {
		t.Errorf("after completion: %+v", snap)
	}
}

func TestController_UploadFailureKeepsSession(t *testing.T) {
	c := uploaded(t, &fakeGateway{})
	id := c.Snapshot().SessionID

	err := c.Upload(context.Background(), []byte("GIF89a"), "image/gif")
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("Upload() error = %v, want ErrUnsupportedMediaType", err)
	}
	snap := c.Snapshot()
	if !snap.Loaded || snap.SessionID != id {
		t.Error("failed upload should keep the previous session")
	}
	if snap.Status != StatusError || snap.Message == "" {
		t.Errorf("snapshot = %+v, want error message", snap)
	}
}

func TestController_UploadStartsNewSession(t *testing.T) {
	gw := &fakeGateway{results: []models.ImageVersion{version(t, 2)}}
	c := uploaded(t, gw)
	first := c.Snapshot().SessionID
	if _, err := c.Generate(context.Background(), "add fog"); err != nil {
		t.Fatal(err)
	}

	if err := c.Upload(context.Background(), pngBytes(t, 7), models.MediaPNG); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if snap.SessionID == "" || snap.SessionID == first {
		t.Error("upload should start a session with a fresh id")
	}
	if snap.Length != 1 || snap.Modified || snap.Note != "" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestController_Reset(t *testing.T) {
	gw := &fakeGateway{err: errors.New("boom")}
	c := uploaded(t, gw)
	_, _ = c.Generate(context.Background(), "add fog")
	if c.Snapshot().Status != StatusError {
		t.Fatal("expected error status")
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	snap := c.Snapshot()
	if snap.Loaded || snap.Status != StatusIdle || snap.Message != "" || snap.SessionID != "" {
		t.Errorf("after Reset: %+v", snap)
	}
	if _, ok := c.Current(); ok {
		t.Error("Current() should report false after Reset")
	}
}

func TestController_UndoRedoErrors(t *testing.T) {
	c := uploaded(t, &fakeGateway{})
	if err := c.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo() error = %v", err)
	}
	if err := c.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo() error = %v", err)
	}
	if c.Snapshot().Status != StatusIdle {
		t.Error("no-op undo/redo must not change status")
	}
}

func TestController_RecorderErrorsAreSwallowed(t *testing.T) {
	gw := &fakeGateway{results: []models.ImageVersion{version(t, 2)}}
	c := NewController(gw)
	c.SetRecorder(&fakeRecorder{err: errors.New("disk full")})

	if err := c.Upload(context.Background(), pngBytes(t, 1), models.MediaPNG); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := c.Generate(context.Background(), "add fog"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestController_OnChange(t *testing.T) {
	gw := &fakeGateway{results: []models.ImageVersion{version(t, 2)}}
	c := NewController(gw)

	var mu sync.Mutex
	var seen []Status
	c.OnChange(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})

	if err := c.Upload(context.Background(), pngBytes(t, 1), models.MediaPNG); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Generate(context.Background(), "add fog"); err != nil {
		t.Fatal(err)
	}

	want := []Status{StatusUploading, StatusIdle, StatusProcessing, StatusSuccess}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("statuses = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("statuses = %v, want %v", seen, want)
			break
		}
	}
}

func TestController_VersionAndHistory(t *testing.T) {
	p1 := version(t, 2)
	c := uploaded(t, &fakeGateway{results: []models.ImageVersion{p1}})
	if _, err := c.Generate(context.Background(), "add fog"); err != nil {
		t.Fatal(err)
	}

	if v, ok := c.Version(1); !ok || !v.Equal(p1) {
		t.Error("Version(1) should be the generated version")
	}
	if _, ok := c.Version(3); ok {
		t.Error("Version(3) should not exist")
	}
	if len(c.History()) != 2 {
		t.Errorf("History() len = %d", len(c.History()))
	}
	orig, _ := c.Original()
	if orig.Equal(p1) {
		t.Error("Original() should be the uploaded image")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&provider.GenerationError{Message: "request timed out"}, "request timed out"},
		{ErrUnsupportedMediaType, "Unsupported file type. Please upload a PNG, JPEG or WEBP image."},
		{ErrReadFailure, "The file could not be read as an image."},
		{ErrEmptyInstruction, "Please describe the edit you want."},
		{errors.New("other"), "other"},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestController_GenerateHonoursCancellation(t *testing.T) {
	gw := &fakeGateway{err: context.Canceled}
	c := uploaded(t, gw)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, "add fog"); !errors.Is(err, context.Canceled) {
		t.Errorf("Generate() error = %v", err)
	}
	if c.Snapshot().Length != 1 {
		t.Error("cancelled generation must not commit")
	}
}
