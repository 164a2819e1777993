package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultRetention = 10

// timestampLayout matches spec.md's "%Y%m%d_%H%M%S" archive timestamp
// format exactly.
const timestampLayout = "20060102_150405"

// Store reads, writes, and versions CapabilityFile documents under a
// root directory laid out per spec.md section 6:
//
//	<root>/<upstream>.yaml
//	<root>/versions/<upstream>/<upstream>.<ts>.yaml
type Store struct {
	root      string
	retention int
}

// NewStore builds a Store rooted at dir, keeping the newest `retention`
// archived versions per upstream (spec.md default: 10).
func NewStore(dir string, retention int) *Store {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Store{root: dir, retention: retention}
}

func (s *Store) path(upstream string) string {
	return filepath.Join(s.root, upstream+".yaml")
}

func (s *Store) versionsDir(upstream string) string {
	return filepath.Join(s.root, "versions", upstream)
}

// Load reads the current on-disk CapabilityFile for upstream, returning
// (nil, nil) if none exists yet.
func (s *Store) Load(upstream string) (*CapabilityFile, error) {
	data, err := os.ReadFile(s.path(upstream))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", upstream, err)
	}
	var cf CapabilityFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", upstream, err)
	}
	return &cf, nil
}

// PreserveUserFlags copies enabled/hidden from existing (indexed by tool
// name) into fresh, defaulting new entries to (true, true) per spec.md
// section 4.D.
func PreserveUserFlags(fresh *CapabilityFile, existing *CapabilityFile) {
	prior := make(map[string]ToolDefinition)
	if existing != nil {
		for _, t := range existing.Tools {
			prior[t.Name] = t
		}
	}
	for i := range fresh.Tools {
		if old, ok := prior[fresh.Tools[i].Name]; ok {
			fresh.Tools[i].Enabled = old.Enabled
			fresh.Tools[i].Hidden = old.Hidden
		} else {
			fresh.Tools[i].Enabled = true
			fresh.Tools[i].Hidden = true
		}
	}
}

// StructurallyEqual implements spec.md section 4.D's write-policy
// comparison: metadata compared by value, tools compared after sorting
// by name, each tool compared on name/description/input_schema/enabled/
// hidden/routing — annotations and ref lists are intentionally excluded
// so a discovery-only change to, say, observed capability annotations
// doesn't by itself trigger an archive+rewrite.
func StructurallyEqual(a, b *CapabilityFile) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !equalMetadata(a.Metadata, b.Metadata) {
		return false
	}
	if len(a.Tools) != len(b.Tools) {
		return false
	}

	sortedA := sortedTools(a.Tools)
	sortedB := sortedTools(b.Tools)
	for i := range sortedA {
		if !equalTool(sortedA[i], sortedB[i]) {
			return false
		}
	}
	return true
}

func equalMetadata(a, b Metadata) bool {
	if a.Name != b.Name || a.Version != b.Version || a.Description != b.Description || a.Author != b.Author {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}

func equalTool(a, b ToolDefinition) bool {
	if a.Name != b.Name || a.Description != b.Description || a.Enabled != b.Enabled || a.Hidden != b.Hidden {
		return false
	}
	if a.Routing != b.Routing {
		return false
	}
	ac, errA := canonicalizeJSON(a.InputSchema)
	bc, errB := canonicalizeJSON(b.InputSchema)
	if errA != nil || errB != nil {
		return string(a.InputSchema) == string(b.InputSchema)
	}
	return string(ac) == string(bc)
}

func sortedTools(tools []ToolDefinition) []ToolDefinition {
	sorted := make([]ToolDefinition, len(tools))
	copy(sorted, tools)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

// Write applies the full write policy: load the existing file, preserve
// user flags into fresh, skip the write if structurally equal, otherwise
// archive the current file and write fresh, then enforce retention.
func (s *Store) Write(upstream string, fresh *CapabilityFile) error {
	existing, err := s.Load(upstream)
	if err != nil {
		return err
	}

	if existing != nil {
		PreserveUserFlags(fresh, existing)
	} else {
		for i := range fresh.Tools {
			fresh.Tools[i].Enabled = true
			fresh.Tools[i].Hidden = true
		}
	}

	if existing != nil && StructurallyEqual(fresh, existing) {
		slog.Debug("catalog: skipping write, structurally unchanged", "upstream", upstream)
		return nil
	}

	if existing != nil {
		if err := s.archive(upstream, existing); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("catalog: create capability dir: %w", err)
	}
	data, err := yaml.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("catalog: marshal %s: %w", upstream, err)
	}
	if err := os.WriteFile(s.path(upstream), data, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", upstream, err)
	}

	return s.enforceRetention(upstream)
}

func (s *Store) archive(upstream string, current *CapabilityFile) error {
	info, err := os.Stat(s.path(upstream))
	if err != nil {
		return fmt.Errorf("catalog: stat existing %s: %w", upstream, err)
	}
	ts := info.ModTime().UTC().Format(timestampLayout)

	archived := *current
	archived.Metadata.Description = fmt.Sprintf("[ARCHIVED %s] %s", ts, current.Metadata.Description)
	archived.Metadata.Version = fmt.Sprintf("%s-archived-%s", current.Metadata.Version, ts)
	archived.Metadata.Tags = append(append([]string{}, current.Metadata.Tags...), "version-archive")

	dir := s.versionsDir(upstream)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog: create versions dir: %w", err)
	}
	data, err := yaml.Marshal(archived)
	if err != nil {
		return fmt.Errorf("catalog: marshal archived %s: %w", upstream, err)
	}
	archivePath := filepath.Join(dir, fmt.Sprintf("%s.%s.yaml", upstream, ts))
	for n := 1; ; n++ {
		if _, err := os.Stat(archivePath); os.IsNotExist(err) {
			break
		}
		archivePath = filepath.Join(dir, fmt.Sprintf("%s.%s_%d.yaml", upstream, ts, n))
	}
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write archive %s: %w", upstream, err)
	}
	return nil
}

func (s *Store) enforceRetention(upstream string) error {
	dir := s.versionsDir(upstream)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("catalog: list versions %s: %w", upstream, err)
	}

	type versionFile struct {
		path    string
		modTime time.Time
	}
	var files []versionFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, versionFile{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	for _, f := range files[min(len(files), s.retention):] {
		if err := os.Remove(f.path); err != nil {
			slog.Warn("catalog: failed to remove old version", "path", f.path, "error", err)
		}
	}
	return nil
}

// GetVersions lists archived versions for upstream, newest first.
func (s *Store) GetVersions(upstream string) ([]string, error) {
	dir := s.versionsDir(upstream)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: list versions %s: %w", upstream, err)
	}

	type versionFile struct {
		name    string
		modTime time.Time
	}
	var files []versionFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, versionFile{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

// Restore archives the current file (if any) and replaces it with the
// archived copy named ts (the basename as returned by GetVersions).
func (s *Store) Restore(upstream, ts string) error {
	archivePath := filepath.Join(s.versionsDir(upstream), ts)
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("catalog: read archive %s: %w", ts, err)
	}

	current, err := s.Load(upstream)
	if err != nil {
		return err
	}
	if current != nil {
		if err := s.archive(upstream, current); err != nil {
			return err
		}
	}

	if err := os.WriteFile(s.path(upstream), data, 0o644); err != nil {
		return fmt.Errorf("catalog: restore %s: %w", upstream, err)
	}
	return s.enforceRetention(upstream)
}
