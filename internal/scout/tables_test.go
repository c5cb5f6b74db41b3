package scout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTables(t *testing.T) {
	tables := DefaultTables()

	assert.Contains(t, tables.ChallengeMarkers, "slide to verify")
	assert.Contains(t, tables.SliderSelectors, "#nc_1_n1z")
	assert.Contains(t, tables.ResultMarkers, "Chat now")
	assert.Equal(t, "input[name='SearchText']", tables.SearchInputSelector)
	// residual markers must be a strict subset of the challenge markers
	for _, m := range tables.ResidualMarkers {
		assert.Contains(t, tables.ChallengeMarkers, m)
	}
}

func TestLoadTables_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"slider_selectors":["#new-handle"],"search_input_selector":"input.q"}`), 0o644))

	tables, err := LoadTables(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"#new-handle"}, tables.SliderSelectors)
	assert.Equal(t, "input.q", tables.SearchInputSelector)
	assert.Equal(t, DefaultTables().ChallengeMarkers, tables.ChallengeMarkers)
}

func TestLoadTables_EmptyPathReturnsDefaults(t *testing.T) {
	tables, err := LoadTables("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTables(), tables)
}
