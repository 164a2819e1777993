// Package storage implements Content Storage (spec.md section 4.F):
// durable files for generated prompts and resources, named so a tool
// catalog entry can reference one without embedding its content.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const defaultMaxAgeDays = 90

// Subtype names which content kind a stored file holds.
type Subtype string

const (
	SubtypePrompt   Subtype = "prompt"
	SubtypeResource Subtype = "resource"
)

// Metadata is the self-describing block every stored file carries
// alongside its content (spec.md section 3).
type Metadata struct {
	ID                 string `json:"id"`
	ToolName           string `json:"tool_name"`
	ContentType        string `json:"content_type"`
	ContentSubtype     string `json:"content_subtype"`
	GenerationMetadata string `json:"generation_metadata,omitempty"`
	StoredAt           string `json:"stored_at"`
	Version            int    `json:"version"`
	FilePath           string `json:"file_path"`
}

// StoredPrompt is a template plus its metadata.
type StoredPrompt struct {
	Metadata Metadata `json:"metadata"`
	Template string   `json:"template"`
}

// StoredResource is a resource payload plus its metadata.
type StoredResource struct {
	Metadata Metadata `json:"metadata"`
	Content  string   `json:"content"`
}

// PromptReference/ResourceReference keep the catalog file compact: only
// the relative storage path travels with a ToolDefinition.
type PromptReference struct {
	StoragePath string `yaml:"storage_path" json:"storage_path"`
}

type ResourceReference struct {
	StoragePath string `yaml:"storage_path" json:"storage_path"`
}

// Store manages files under <root>/prompts/ and <root>/resources/.
type Store struct {
	root       string
	maxAgeDays int
}

// NewStore builds a Store rooted at dir. maxAgeDays <= 0 uses the
// spec.md default of 90.
func NewStore(dir string, maxAgeDays int) *Store {
	if maxAgeDays <= 0 {
		maxAgeDays = defaultMaxAgeDays
	}
	return &Store{root: dir, maxAgeDays: maxAgeDays}
}

func subtypeDir(subtype Subtype) string {
	switch subtype {
	case SubtypePrompt:
		return "prompts"
	default:
		return "resources"
	}
}

// newFileName builds "<tool>_<subtype>_<YYYYMMDD_HHMMSS>_<uuid8>.json"
// per spec.md section 4.F/6.
func newFileName(tool string, subtype Subtype, now time.Time) string {
	ts := now.UTC().Format("20060102_150405")
	short := uuid.NewString()[:8]
	return fmt.Sprintf("%s_%s_%s_%s.json", tool, subtype, ts, short)
}

// StorePrompt writes a new StoredPrompt and returns its PromptReference.
func (s *Store) StorePrompt(tool, template, generationMetadata string, now time.Time) (PromptReference, error) {
	dir := filepath.Join(s.root, subtypeDir(SubtypePrompt))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PromptReference{}, fmt.Errorf("storage: create prompts dir: %w", err)
	}

	fileName := newFileName(tool, SubtypePrompt, now)
	relPath := filepath.Join(subtypeDir(SubtypePrompt), fileName)

	sp := StoredPrompt{
		Metadata: Metadata{
			ID:                 uuid.NewString(),
			ToolName:           tool,
			ContentType:        "prompt",
			ContentSubtype:     string(SubtypePrompt),
			GenerationMetadata: generationMetadata,
			StoredAt:           now.UTC().Format(time.RFC3339),
			Version:            1,
			FilePath:           relPath,
		},
		Template: template,
	}

	if err := s.writeJSON(filepath.Join(s.root, relPath), sp); err != nil {
		return PromptReference{}, err
	}
	return PromptReference{StoragePath: relPath}, nil
}

// StoreResource writes a new StoredResource and returns its
// ResourceReference.
func (s *Store) StoreResource(tool, content, generationMetadata string, now time.Time) (ResourceReference, error) {
	dir := filepath.Join(s.root, subtypeDir(SubtypeResource))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ResourceReference{}, fmt.Errorf("storage: create resources dir: %w", err)
	}

	fileName := newFileName(tool, SubtypeResource, now)
	relPath := filepath.Join(subtypeDir(SubtypeResource), fileName)

	sr := StoredResource{
		Metadata: Metadata{
			ID:                 uuid.NewString(),
			ToolName:           tool,
			ContentType:        "resource",
			ContentSubtype:     string(SubtypeResource),
			GenerationMetadata: generationMetadata,
			StoredAt:           now.UTC().Format(time.RFC3339),
			Version:            1,
			FilePath:           relPath,
		},
		Content: content,
	}

	if err := s.writeJSON(filepath.Join(s.root, relPath), sr); err != nil {
		return ResourceReference{}, err
	}
	return ResourceReference{StoragePath: relPath}, nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// ResolvePrompt reads and deserializes the StoredPrompt referenced by ref.
func (s *Store) ResolvePrompt(ref PromptReference) (*StoredPrompt, error) {
	data, err := os.ReadFile(filepath.Join(s.root, ref.StoragePath))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", ref.StoragePath, err)
	}
	var sp StoredPrompt
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", ref.StoragePath, err)
	}
	return &sp, nil
}

// ResolveResource reads and deserializes the StoredResource referenced
// by ref.
func (s *Store) ResolveResource(ref ResourceReference) (*StoredResource, error) {
	data, err := os.ReadFile(filepath.Join(s.root, ref.StoragePath))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", ref.StoragePath, err)
	}
	var sr StoredResource
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", ref.StoragePath, err)
	}
	return &sr, nil
}

// Cleanup deletes files under prompts/ and resources/ older than
// max_age_days, relative to now. Called on startup and on demand per
// spec.md section 4.F.
func (s *Store) Cleanup(now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(s.maxAgeDays) * 24 * time.Hour)
	removed := 0

	for _, subtype := range []Subtype{SubtypePrompt, SubtypeResource} {
		dir := filepath.Join(s.root, subtypeDir(subtype))
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("storage: list %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
					return removed, fmt.Errorf("storage: remove %s: %w", e.Name(), err)
				}
				removed++
			}
		}
	}
	return removed, nil
}
