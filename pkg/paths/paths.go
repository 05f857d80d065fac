// Package paths resolves the canonical on-disk locations atsi uses for
// cached artifacts, per-container state, and the network helper's
// control socket.
package paths

import (
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
)

const vendor = ""
const project = "atsi"

// Layout is the resolved set of directories and file-naming functions
// atsi uses. It is built once at startup and threaded through every
// component that needs it.
type Layout struct {
	CacheDir string
	DataDir  string
}

// NewLayout resolves the cache and data directories, honoring
// ATSI_CACHE_DIR and ATSI_DATA_DIR overrides before falling back to the
// XDG defaults.
func NewLayout() (*Layout, error) {
	cacheDir := os.Getenv("ATSI_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = filepath.Join(xdg.New(vendor, project).CacheHome(), "@")
	}

	dataDir := os.Getenv("ATSI_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(xdg.New(vendor, project).DataHome(), "@")
	}

	l := &Layout{CacheDir: cacheDir, DataDir: dataDir}

	if err := os.MkdirAll(l.CacheDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(l.ContainersDir(), 0o755); err != nil {
		return nil, err
	}

	return l, nil
}

// AlpineDir is where downloaded Alpine artifacts live.
func (l *Layout) AlpineDir() string {
	return filepath.Join(l.CacheDir, "alpine")
}

// AlpineTarballPath is the cached, write-once Alpine minirootfs tarball
// for the given version and architecture.
func (l *Layout) AlpineTarballPath(version, arch string) string {
	return filepath.Join(l.AlpineDir(), "alpine-rootfs-"+version+"-"+arch+".tar.gz")
}

// AlpineExtractedPath is the reserved (currently unused by extraction,
// which targets a container's rootfs_lower instead) extracted-tree path.
func (l *Layout) AlpineExtractedPath(version, arch string) string {
	return filepath.Join(l.AlpineDir(), "alpine-rootfs-"+version+"-"+arch)
}

// SlirpBinaryPath is the cached, write-once network helper executable.
func (l *Layout) SlirpBinaryPath() string {
	return filepath.Join(l.CacheDir, "slirp4netns")
}

// ContainersDir is the parent directory of all per-container roots.
func (l *Layout) ContainersDir() string {
	return filepath.Join(l.DataDir, "containers")
}

// ContainerRoot is the per-container root directory.
func (l *Layout) ContainerRoot(name string) string {
	return filepath.Join(l.ContainersDir(), name)
}

// RootfsLower is the extracted, pristine Alpine tree for a container.
func (l *Layout) RootfsLower(name string) string {
	return filepath.Join(l.ContainerRoot(name), "rootfs_lower")
}

// Rootfs is the chroot target: rootfs_lower bind-mounted onto this path.
func (l *Layout) Rootfs(name string) string {
	return filepath.Join(l.ContainerRoot(name), "rootfs")
}

// Tmp is the host-side backing directory for the guest's /tmp.
func (l *Layout) Tmp(name string) string {
	return filepath.Join(l.ContainerRoot(name), "tmp")
}

// PersistenceFile is where PersistentState is serialized.
func (l *Layout) PersistenceFile(name string) string {
	return filepath.Join(l.ContainerRoot(name), "state.json")
}

// SlirpSocketPath is the helper's control socket, namespaced by
// container name so concurrent containers never collide.
func SlirpSocketPath(name string) string {
	return filepath.Join(os.TempDir(), "slirp4netns-"+name+".sock")
}
