package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLayoutHonorsEnvOverrides(t *testing.T) {
	cacheDir := t.TempDir()
	dataDir := t.TempDir()

	t.Setenv("ATSI_CACHE_DIR", cacheDir)
	t.Setenv("ATSI_DATA_DIR", dataDir)

	layout, err := NewLayout()
	assert.NoError(t, err)
	assert.Equal(t, cacheDir, layout.CacheDir)
	assert.Equal(t, dataDir, layout.DataDir)

	assert.DirExists(t, layout.ContainersDir())
}

func TestContainerPathsAreRootedUnderDataDir(t *testing.T) {
	layout := &Layout{CacheDir: "/cache/@", DataDir: "/data/@"}

	assert.Equal(t, filepath.Join("/data/@/containers/demo"), layout.ContainerRoot("demo"))
	assert.Equal(t, filepath.Join("/data/@/containers/demo/rootfs_lower"), layout.RootfsLower("demo"))
	assert.Equal(t, filepath.Join("/data/@/containers/demo/rootfs"), layout.Rootfs("demo"))
	assert.Equal(t, filepath.Join("/data/@/containers/demo/tmp"), layout.Tmp("demo"))
	assert.Equal(t, filepath.Join("/data/@/containers/demo/state.json"), layout.PersistenceFile("demo"))
}

func TestAlpineTarballPathUsesVersionAndArchVerbatim(t *testing.T) {
	layout := &Layout{CacheDir: "/cache/@", DataDir: "/data/@"}

	assert.Equal(t, "/cache/@/alpine/alpine-rootfs-3.20-x86_64.tar.gz", layout.AlpineTarballPath("3.20", "x86_64"))
}

func TestSlirpSocketPathIsNamespacedByContainerName(t *testing.T) {
	assert.NotEqual(t, SlirpSocketPath("a"), SlirpSocketPath("b"))
}
