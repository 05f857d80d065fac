package fsdriver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queer/atsi/pkg/paths"
)

func newTestDriver(t *testing.T) (*Driver, string) {
	dataDir := t.TempDir()
	layout := &paths.Layout{CacheDir: t.TempDir(), DataDir: dataDir}
	return New(layout), dataDir
}

func TestContainerRootCreatesOnce(t *testing.T) {
	d, _ := newTestDriver(t)

	root, err := d.ContainerRoot("demo")
	assert.NoError(t, err)
	assert.DirExists(t, root)

	_, err = d.ContainerRoot("demo")
	assert.Error(t, err, "second call on the same name must fail as a collision")
}

func TestCleanupRootIsIdempotent(t *testing.T) {
	d, _ := newTestDriver(t)

	assert.NoError(t, d.CleanupRoot("never-created"))

	root, err := d.ContainerRoot("demo")
	assert.NoError(t, err)

	assert.NoError(t, d.CleanupRoot("demo"))
	assert.NoDirExists(t, root)

	assert.NoError(t, d.CleanupRoot("demo"), "cleanup of an already-removed root must still succeed")
}

func TestTouchAndTouchDir(t *testing.T) {
	dir := t.TempDir()

	filePath := filepath.Join(dir, "dev", "null")
	assert.NoError(t, TouchDir(filepath.Join(dir, "dev")))
	assert.NoError(t, Touch(filePath))

	info, err := os.Stat(filePath)
	assert.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestPersistenceFileMatchesLayout(t *testing.T) {
	d, dataDir := newTestDriver(t)

	assert.Equal(t, filepath.Join(dataDir, "containers", "demo", "state.json"), d.PersistenceFile("demo"))
}
