package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTuningLoadMissing verifies a stream without a document loads empty.
func TestTuningLoadMissing(t *testing.T) {
	s := NewTuningStore(t.TempDir())

	params, err := s.Load("unseen")
	require.NoError(t, err)
	assert.Empty(t, params)
}

// TestTuningSaveIdempotent verifies writing the same payload twice yields
// byte-identical documents.
func TestTuningSaveIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := NewTuningStore(dir)
	params := map[string]interface{}{"beam_size": 5, "temperature": 0.2}

	require.NoError(t, s.Save("s1", params))
	first, err := os.ReadFile(filepath.Join(dir, "s1.json"))
	require.NoError(t, err)

	require.NoError(t, s.Save("s1", params))
	second, err := os.ReadFile(filepath.Join(dir, "s1.json"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestTuningRoundTrip verifies Save then Load returns the same values.
func TestTuningRoundTrip(t *testing.T) {
	s := NewTuningStore(t.TempDir())

	require.NoError(t, s.Save("s1", map[string]interface{}{"beam_size": float64(3)}))
	params, err := s.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, float64(3), params["beam_size"])
}

// TestTuningPathConfined verifies stream identifiers cannot escape the
// store directory.
func TestTuningPathConfined(t *testing.T) {
	dir := t.TempDir()
	s := NewTuningStore(dir)

	require.NoError(t, s.Save("../escape", map[string]interface{}{"k": "v"}))
	_, err := os.Stat(filepath.Join(dir, "escape.json"))
	assert.NoError(t, err)
}

// TestTuningSaveNoLeftoverTemp verifies no temp files survive a save.
func TestTuningSaveNoLeftoverTemp(t *testing.T) {
	dir := t.TempDir()
	s := NewTuningStore(dir)
	require.NoError(t, s.Save("s1", map[string]interface{}{"k": "v"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1.json", entries[0].Name())
}
