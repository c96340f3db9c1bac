package keys

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/manash/imgstudio/pkg/models"
)

// DirEnv overrides the configuration directory.
const DirEnv = "IMGSTUDIO_CONFIG_DIR"

// Store handles API key storage and retrieval
type Store struct {
	configDir string
}

// KeyEntry represents a stored API key
type KeyEntry struct {
	Key string `json:"key"`
}

// Keys represents the keys.json structure
type Keys map[string]KeyEntry

// NewStore opens the key store in the default configuration directory.
func NewStore() (*Store, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return &Store{configDir: configDir}, nil
}

// NewStoreAt opens the key store in dir.
func NewStoreAt(dir string) *Store {
	return &Store{configDir: dir}
}

// ConfigDir returns the platform-specific configuration directory. The
// IMGSTUDIO_CONFIG_DIR environment variable takes precedence.
func ConfigDir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "imgstudio"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "imgstudio"), nil
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "imgstudio"), nil
	}
}

// EnvVar is the environment variable holding a provider's API key.
func EnvVar(provider models.ProviderType) string {
	return strings.ToUpper(string(provider)) + "_API_KEY"
}

// Path returns the path to the keys.json file
func (s *Store) Path() string {
	return filepath.Join(s.configDir, "keys.json")
}

func (s *Store) load() (Keys, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(Keys), nil
		}
		return nil, err
	}

	var keys Keys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse keys.json: %w", err)
	}
	if keys == nil {
		keys = make(Keys)
	}
	return keys, nil
}

func (s *Store) save(keys Keys) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}

	// owner read/write only
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write keys.json: %w", err)
	}
	return nil
}

// Set stores a key for the given provider
func (s *Store) Set(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty key for %s", provider)
	}
	keys, err := s.load()
	if err != nil {
		return err
	}

	keys[provider] = KeyEntry{Key: key}
	return s.save(keys)
}

// Get returns the stored key, or "" when none is stored.
func (s *Store) Get(provider string) (string, error) {
	keys, err := s.load()
	if err != nil {
		return "", err
	}
	return keys[provider].Key, nil
}

func (s *Store) Delete(provider string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := keys[provider]; !ok {
		return fmt.Errorf("no key found for %s", provider)
	}

	delete(keys, provider)
	return s.save(keys)
}

// List returns stored provider names in sorted order.
func (s *Store) List() ([]string, error) {
	keys, err := s.load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(keys))
	for provider := range keys {
		providers = append(providers, provider)
	}
	slices.Sort(providers)
	return providers, nil
}

func (s *Store) Exists(provider string) (bool, error) {
	keys, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := keys[provider]
	return ok, nil
}

// MaskKey returns a masked version of the key for display
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Resolve finds the API key for provider using the priority order:
//  1. explicit key (flag or config file)
//  2. key stored in keys.json
//  3. <PROVIDER>_API_KEY environment variable
//
// It returns the key and a description of where it came from.
func (s *Store) Resolve(explicitKey string, provider models.ProviderType) (string, string, error) {
	if explicitKey != "" {
		return explicitKey, "command-line flag", nil
	}

	if s != nil {
		if stored, err := s.Get(string(provider)); err == nil && stored != "" {
			return stored, fmt.Sprintf("stored key (%s)", s.Path()), nil
		}
	}

	envVar := EnvVar(provider)
	if envKey := os.Getenv(envVar); envKey != "" {
		return envKey, fmt.Sprintf("environment variable (%s)", envVar), nil
	}

	return "", "", fmt.Errorf("API key required: run 'imgstudio keys set %s' or set %s environment variable", provider, envVar)
}
