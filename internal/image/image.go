package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/manash/imgstudio/internal/security"
	"github.com/manash/imgstudio/pkg/models"
)

// maxDownloadBytes caps a single downloaded image.
const maxDownloadBytes = 50 << 20

type Saver struct {
	httpClient *http.Client
}

func NewSaver() *Saver {
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Fetch returns the bytes of a generated image, downloading it when the
// provider only returned a URL.
func (s *Saver) Fetch(ctx context.Context, img *models.GeneratedImage) ([]byte, error) {
	if len(img.Data) > 0 {
		return img.Data, nil
	}
	if img.URL == "" {
		return nil, models.ErrNoImageData
	}

	if err := security.ValidateImageURL(img.URL, false); err != nil {
		return nil, fmt.Errorf("refusing to download image: %w", err)
	}

	data, err := s.downloadFromURL(ctx, img.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	return data, nil
}

// ReadFile reads a local image and detects its media type from content.
func ReadFile(path string) ([]byte, models.MediaType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return data, Sniff(data), nil
}

// Write stores data at path, creating parent directories.
func (s *Saver) Write(path string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}

	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// SaveExport encodes v and writes it to path. An empty path uses the export
// file name in the current directory.
func (s *Saver) SaveExport(v models.ImageVersion, path, prefix string, format models.OutputFormat, scale float64) (string, error) {
	data, err := Export(v, format, scale)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = ExportFilename(prefix, time.Now(), format)
	}

	if err := s.Write(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveSteps writes each version next to basePath as base-1.ext, base-2.ext...
func (s *Saver) SaveSteps(versions []models.ImageVersion, basePath string) ([]string, error) {
	paths := make([]string, 0, len(versions))

	for i, v := range versions {
		format, ok := v.MediaType().Format()
		if !ok {
			format = models.FormatPNG
		}
		path := StepPath(basePath, i, format)
		if err := s.Write(path, v.Bytes()); err != nil {
			return paths, fmt.Errorf("failed to save step %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func (s *Saver) downloadFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// StepPath derives the path of intermediate step index from basePath. The
// extension always follows the step's own format.
func StepPath(basePath string, index int, format models.OutputFormat) string {
	ext := filepath.Ext(basePath)
	base := basePath[:len(basePath)-len(ext)]
	if base == "" {
		base = DefaultPrefix
	}
	return fmt.Sprintf("%s-step%d.%s", base, index+1, format.Extension())
}
