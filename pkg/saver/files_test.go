package saver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreEntityFileSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f1.png"), []byte("already here"), 0o644))

	fake := &fakeClient{files: map[string]string{"files/f1": "fresh content"}}
	s := New(fake, testConfig(t), nil)

	existing := listExistingByStem(dir)
	name, err := s.storeEntityFile(dir, "f1", ".png", "files/f1", existing)
	require.NoError(t, err)
	assert.Equal(t, "f1.png", name)

	content, err := os.ReadFile(filepath.Join(dir, "f1.png"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(content))
}

func TestStoreEntityFileSniffsExtension(t *testing.T) {
	dir := t.TempDir()
	// Minimal PNG header is enough for content detection.
	png := string([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	fake := &fakeClient{files: map[string]string{"emoji/e1/image": png}}
	s := New(fake, testConfig(t), nil)

	name, err := s.storeEntityFile(dir, "party", "", "emoji/e1/image", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "party.png", name)
	assert.FileExists(t, filepath.Join(dir, "party.png"))
}

func TestStoreEntityFileCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeClient{files: map[string]string{}}
	s := New(fake, testConfig(t), nil)

	_, err := s.storeEntityFile(dir, "gone", "", "files/gone", map[string]string{})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMimeTypeAllowed(t *testing.T) {
	allowed := []string{"image/png", "application/pdf"}
	assert.True(t, mimeTypeAllowed("image/png", allowed))
	assert.False(t, mimeTypeAllowed("image/jpeg", allowed))
	assert.False(t, mimeTypeAllowed("", allowed))
}

func TestListExistingByStem(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	m := listExistingByStem(dir)
	assert.Equal(t, map[string]string{"a": "a.png", "b": "b"}, m)

	assert.Empty(t, listExistingByStem(filepath.Join(dir, "missing")))
}
