package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	ids := make([]string, 0, len(c.Rooms))
	for _, room := range c.Rooms {
		ids = append(ids, room.ID)
	}
	assert.Equal(t, []string{"general", "tech_qa", "frontend"}, ids)
}

func TestLoadAndValidate(t *testing.T) {
	t.Setenv("OPS_ROOM", "ops")
	path := writeTempFile(t, `
rooms:
  - id: general
    name: General
  - id: ${OPS_ROOM}
`)

	c, err := LoadAndValidate(path)
	require.NoError(t, err)
	require.Len(t, c.Rooms, 2)

	room, ok := c.Lookup("ops")
	assert.True(t, ok)
	assert.Equal(t, "ops", room.Name)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestLoadAndValidateEmptyPathUsesDefault(t *testing.T) {
	c, err := LoadAndValidate("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadAndValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no rooms", content: "rooms: []\n"},
		{name: "missing id", content: "rooms:\n  - name: Nameless\n"},
		{name: "duplicate id", content: "rooms:\n  - id: general\n  - id: general\n"},
		{name: "bad yaml", content: "rooms: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAndValidate(writeTempFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestShippedCatalogMatchesDefault(t *testing.T) {
	c, err := LoadAndValidate(filepath.Join("..", "..", "configs", "rooms.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}
