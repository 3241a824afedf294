package cameras

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/datastore"
)

func seededSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = filepath.Join(t.TempDir(), "events.db")

	store := datastore.New(s, nil)
	require.NoError(t, store.Open())
	db := store.(*datastore.SQLiteStore).DB
	for _, c := range []datastore.Camera{
		{CameraName: "Hall 2", CameraIP: "10.0.0.12", Position: "rear", Status: datastore.CameraStatusOnline},
		{CameraName: "Hall 1", CameraIP: "10.0.0.11", Position: "front", Status: datastore.CameraStatusOnline},
		{CameraName: "Hall 3", Status: "offline"},
	} {
		require.NoError(t, db.Create(&c).Error)
	}
	require.NoError(t, store.Close())
	return s
}

func TestCamerasTable(t *testing.T) {
	t.Parallel()

	cmd := Command(seededSettings(t))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "Hall 1")
	assert.Contains(t, lines[1], "10.0.0.11")
	assert.Contains(t, lines[2], "Hall 2")
}

func TestCamerasJSON(t *testing.T) {
	t.Parallel()

	cmd := Command(seededSettings(t))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())

	var cams []datastore.Camera
	require.NoError(t, json.Unmarshal(out.Bytes(), &cams))
	require.Len(t, cams, 2)
	assert.Equal(t, "Hall 1", cams[0].CameraName)
}

func TestCamerasEmptyRosterIsJSONArray(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = filepath.Join(t.TempDir(), "empty.db")

	cmd := Command(s)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "[]", strings.TrimSpace(out.String()))
}

func TestCamerasWithoutStore(t *testing.T) {
	t.Parallel()

	cmd := Command(&conf.Settings{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	require.Error(t, cmd.Execute())
}
