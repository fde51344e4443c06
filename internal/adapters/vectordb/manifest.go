package vectordb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

// ManifestFile is written last into every saved index directory.
const ManifestFile = "manifest.yaml"

// FormatVersion is bumped when the on-disk layout changes incompatibly.
const FormatVersion = 1

// Manifest describes a saved index.
type Manifest struct {
	Version        int       `yaml:"version"`
	Kind           string    `yaml:"kind"`
	Dimensions     int       `yaml:"dimensions"`
	Count          int       `yaml:"count"`
	EmbeddingModel string    `yaml:"embedding_model,omitempty"`
	ChunkSize      int       `yaml:"chunk_size,omitempty"`
	ChunkOverlap   int       `yaml:"chunk_overlap,omitempty"`
	CreatedAt      time.Time `yaml:"created_at"`
}

func newManifest(kind string, dims, count int, meta ports.IndexMeta) Manifest {
	return Manifest{
		Version:        FormatVersion,
		Kind:           kind,
		Dimensions:     dims,
		Count:          count,
		EmbeddingModel: meta.EmbeddingModel,
		ChunkSize:      meta.ChunkSize,
		ChunkOverlap:   meta.ChunkOverlap,
		CreatedAt:      time.Now().UTC(),
	}
}

func writeManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of the index saved in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, fmt.Errorf("%w: no %s in %s", entities.ErrIndexNotFound, ManifestFile, dir)
	}
	if err != nil {
		return m, fmt.Errorf("%w: reading %s in %s: %v", entities.ErrIndexCorrupt, ManifestFile, dir, err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: parsing manifest: %v", entities.ErrIndexCorrupt, err)
	}
	if m.Version != FormatVersion {
		return m, fmt.Errorf("%w: unsupported index format version %d", entities.ErrIndexCorrupt, m.Version)
	}
	if m.Count < 0 || m.Dimensions < 0 || (m.Count > 0 && m.Dimensions == 0) {
		return m, fmt.Errorf("%w: manifest has count %d and dimensions %d", entities.ErrIndexCorrupt, m.Count, m.Dimensions)
	}
	return m, nil
}

// readManifestKind reads the manifest and checks it was written by kind.
func readManifestKind(dir, kind string) (Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return m, err
	}
	if m.Kind != kind {
		return m, fmt.Errorf("%w: index in %s is %q, not %q", entities.ErrIndexCorrupt, dir, m.Kind, kind)
	}
	return m, nil
}

// dataFile returns the path of name in dir, or ErrIndexCorrupt if it is missing.
func dataFile(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s: %v", entities.ErrIndexCorrupt, name, err)
	}
	return path, nil
}

func checkCount(m Manifest, got int) error {
	if got != m.Count {
		return fmt.Errorf("%w: manifest lists %d chunks, found %d", entities.ErrIndexCorrupt, m.Count, got)
	}
	return nil
}
