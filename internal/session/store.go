// internal/session/store.go
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/postpilot/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ArtifactVersion is the layout version written by Save. Files without a
// version field are Playwright storage-state exports and load as version 0.
const ArtifactVersion = 1

// ErrNoArtifact is returned by Load when no artifact exists for a platform.
var ErrNoArtifact = errors.New("session artifact not found")

// Artifact is a persisted authenticated browser state.
type Artifact struct {
	Version  int       `json:"version,omitempty"`
	Platform string    `json:"platform,omitempty"`
	SavedAt  time.Time `json:"saved_at,omitempty"`
	schemas.StorageState
}

// ArtifactStore reads and writes artifacts keyed by platform.
type ArtifactStore struct {
	dir    string
	files  map[string]string
	logger *zap.Logger
}

// NewArtifactStore creates a store rooted at dir. files optionally maps a
// platform to a file name; unmapped platforms use "<platform>.json".
func NewArtifactStore(dir string, files map[string]string, logger *zap.Logger) *ArtifactStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactStore{dir: dir, files: files, logger: logger.Named("artifact_store")}
}

// Path returns the file backing platform's artifact.
func (s *ArtifactStore) Path(platform string) string {
	name := s.files[strings.ToLower(platform)]
	if name == "" {
		name = strings.ToLower(platform) + ".json"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// Exists reports whether an artifact file is present.
func (s *ArtifactStore) Exists(platform string) bool {
	info, err := os.Stat(s.Path(platform))
	return err == nil && !info.IsDir()
}

// Load reads the artifact of platform.
func (s *ArtifactStore) Load(platform string) (*Artifact, error) {
	path := s.Path(platform)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoArtifact, path)
		}
		return nil, fmt.Errorf("failed to read session artifact %s: %w", path, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode session artifact %s: %w", path, err)
	}
	if a.Version > ArtifactVersion {
		return nil, fmt.Errorf("session artifact %s has unsupported version %d", path, a.Version)
	}
	if a.Platform == "" {
		a.Platform = strings.ToLower(platform)
	}
	s.logger.Debug("Loaded session artifact.",
		zap.String("path", path),
		zap.Int("version", a.Version),
		zap.Int("cookies", len(a.Cookies)))
	return &a, nil
}

// Save writes state for platform, replacing any previous artifact atomically.
func (s *ArtifactStore) Save(platform string, state schemas.StorageState) (string, error) {
	path := s.Path(platform)
	a := Artifact{
		Version:      ArtifactVersion,
		Platform:     strings.ToLower(platform),
		SavedAt:      time.Now().UTC(),
		StorageState: state,
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode session artifact: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write session artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close session artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return "", fmt.Errorf("failed to restrict session artifact permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move session artifact into place: %w", err)
	}

	s.logger.Info("Saved session artifact.", zap.String("path", path), zap.Int("cookies", len(state.Cookies)))
	return path, nil
}

// IsLoginURL reports whether url looks like a login page for any of patterns.
func IsLoginURL(url string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(url, p) {
			return true
		}
	}
	return false
}
