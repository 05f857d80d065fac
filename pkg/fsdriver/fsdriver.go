// Package fsdriver implements the directory/file creation and
// bind-mount primitives the container engine uses to assemble a
// guest's rootfs: container_root, persistence_file, cleanup_root,
// bind_mount_rw, bind_mount_ro, bind_mount_dev, remount_ro, touch and
// touch_dir.
package fsdriver

import (
	"os"

	"github.com/go-errors/errors"
	"golang.org/x/sys/unix"

	"github.com/queer/atsi/pkg/paths"
)

// Driver exposes the filesystem primitives for a single layout.
type Driver struct {
	Layout *paths.Layout
}

// New returns a Driver rooted at layout.
func New(layout *paths.Layout) *Driver {
	return &Driver{Layout: layout}
}

// ContainerRoot ensures and returns the container's root directory.
// Fails if the directory already exists: name collision is a user
// error the caller must surface, not silently ignore.
func (d *Driver) ContainerRoot(name string) (string, error) {
	root := d.Layout.ContainerRoot(name)
	if _, err := os.Stat(root); err == nil {
		return "", errors.Errorf("container %q already exists", name)
	} else if !os.IsNotExist(err) {
		return "", errors.Wrap(err, 0)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", errors.Wrap(err, 0)
	}

	return root, nil
}

// PersistenceFile returns the state.json path for name, without
// touching the filesystem.
func (d *Driver) PersistenceFile(name string) string {
	return d.Layout.PersistenceFile(name)
}

// CleanupRoot recursively removes the container root. A missing tree
// counts as success, so repeated cleanup calls (engine normal exit,
// Ctrl-C handler, reaper) never fail each other.
func (d *Driver) CleanupRoot(name string) error {
	if err := os.RemoveAll(d.Layout.ContainerRoot(name)); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// Touch creates an empty regular file at path if it doesn't exist,
// used for the bind-mount-target stub files (device nodes).
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	return f.Close()
}

// TouchDir creates a directory (and any missing parents) at path.
func TouchDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// BindMountRW bind-mounts src onto dst. Both must already exist. The
// kernel returns EPERM here if the caller lacks the capability in its
// user namespace.
func BindMountRW(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_BIND, ""); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// BindMountRO performs the two-step readonly bind: an initial
// read-write bind, followed by a remount carrying the readonly flag.
// The kernel silently ignores MS_RDONLY on the initial bind, so a
// single-step readonly bind must never be attempted.
func BindMountRO(src, dst string) error {
	if err := BindMountRW(src, dst); err != nil {
		return err
	}
	return RemountRO(dst)
}

// BindMountDev is like BindMountRW, except src is a host device node
// and dst is a pre-created regular file acting as the mount point.
func BindMountDev(devPath, dst string) error {
	return BindMountRW(devPath, dst)
}

// RemountRO issues a bind+readonly+noatime remount on path. Used both
// by BindMountRO and by the immutable-container finalization step.
func RemountRO(path string) error {
	flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | unix.MS_NOATIME)
	if err := unix.Mount("", path, "", flags, ""); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}
