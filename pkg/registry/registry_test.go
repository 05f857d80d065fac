package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/queer/atsi/pkg/engine"
	"github.com/queer/atsi/pkg/paths"
)

func newTestRegistry(t *testing.T) *Registry {
	layout := &paths.Layout{CacheDir: t.TempDir(), DataDir: t.TempDir()}
	assert.NoError(t, os.MkdirAll(layout.ContainersDir(), 0o755))
	return New(layout, logrus.NewEntry(logrus.New()))
}

func writeContainer(t *testing.T, r *Registry, name string, pid int) {
	t.Helper()
	root := r.Layout.ContainerRoot(name)
	assert.NoError(t, os.MkdirAll(root, 0o755))
	assert.NoError(t, engine.SaveState(r.Layout.PersistenceFile(name), &engine.PersistentState{
		Name:    name,
		Command: "sleep 100",
		PID:     pid,
	}))
}

func TestListPartitionsLiveAndPurgesDead(t *testing.T) {
	r := newTestRegistry(t)

	// PID 1 is always alive under /proc.
	writeContainer(t, r, "alive", 1)
	// An implausibly large PID is never alive.
	writeContainer(t, r, "dead", 999999999)

	live, err := r.List()
	assert.NoError(t, err)
	assert.Len(t, live, 1)
	assert.Equal(t, "alive", live[0].Name)

	assert.DirExists(t, r.Layout.ContainerRoot("alive"))
	assert.NoDirExists(t, r.Layout.ContainerRoot("dead"))
}

func TestListPurgesCorruptEntries(t *testing.T) {
	r := newTestRegistry(t)

	root := r.Layout.ContainerRoot("corrupt")
	assert.NoError(t, os.MkdirAll(root, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(root, "state.json"), []byte("not json"), 0o644))

	live, err := r.List()
	assert.NoError(t, err)
	assert.Empty(t, live)
	assert.NoDirExists(t, root)
}

func TestRenderTableHasThreeColumns(t *testing.T) {
	entries := []Entry{
		{Name: "demo", State: &engine.PersistentState{PID: 42, Command: "sleep 1"}},
	}

	table, err := RenderTable(entries)
	assert.NoError(t, err)
	assert.Contains(t, table, "demo")
	assert.Contains(t, table, "42")
	assert.Contains(t, table, "sleep 1")
}

func TestRenderJSONProducesArray(t *testing.T) {
	entries := []Entry{
		{Name: "demo", State: &engine.PersistentState{Name: "demo", PID: 42}},
	}

	body, err := RenderJSON(entries)
	assert.NoError(t, err)
	assert.Contains(t, body, `"pid": 42`)
}
