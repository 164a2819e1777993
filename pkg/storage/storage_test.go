package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePrompt_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 90)

	ref, err := s.StorePrompt("search_tool", "Summarize: {{input}}", "model=gpt-4", time.Now())
	require.NoError(t, err)
	assert.Contains(t, ref.StoragePath, "prompts")

	resolved, err := s.ResolvePrompt(ref)
	require.NoError(t, err)
	assert.Equal(t, "Summarize: {{input}}", resolved.Template)
	assert.Equal(t, "search_tool", resolved.Metadata.ToolName)
}

func TestStoreResource_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 90)

	ref, err := s.StoreResource("fetch_tool", `{"data":1}`, "", time.Now())
	require.NoError(t, err)

	resolved, err := s.ResolveResource(ref)
	require.NoError(t, err)
	assert.Equal(t, `{"data":1}`, resolved.Content)
}

func TestCleanup_RemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 1)

	now := time.Now()
	_, err := s.StorePrompt("old_tool", "old", "", now.Add(-48*time.Hour))
	require.NoError(t, err)
	old := dirFirstFile(t, filepath.Join(dir, "prompts"))
	require.NoError(t, os.Chtimes(old, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))

	_, err = s.StorePrompt("new_tool", "new", "", now)
	require.NoError(t, err)

	removed, err := s.Cleanup(now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := os.ReadDir(filepath.Join(dir, "prompts"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func dirFirstFile(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	return filepath.Join(dir, entries[0].Name())
}
