package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/queer/atsi/pkg/alpine"
	"github.com/queer/atsi/pkg/fsdriver"
	"github.com/queer/atsi/pkg/paths"
)

// alpineArch maps a Go GOARCH to Alpine's architecture naming.
func alpineArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return goarch
	}
}

// RunInContainer is the clone child's entrypoint. It runs inside the
// freshly created pid/uts/mount/net/user/cgroup namespaces, assembles
// the guest's rootfs, chroots into it, optionally installs packages,
// optionally remounts read-only, and execs the command. This call does
// not return on success; on failure it logs and exits nonzero.
func RunInContainer() {
	name := ReexecName()
	if name == "" {
		fmt.Fprintln(os.Stderr, "atsi: re-exec child started without a container name")
		os.Exit(1)
	}

	layout, err := paths.NewLayout()
	if err != nil {
		fmt.Fprintln(os.Stderr, "atsi: failed to resolve path layout:", err)
		os.Exit(1)
	}

	req, err := LoadRequest(requestSidecarPath(layout.PersistenceFile(name)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "atsi: failed to load run request:", err)
		os.Exit(1)
	}

	if err := runInContainer(layout, req); err != nil {
		fmt.Fprintln(os.Stderr, "atsi: container setup failed:", err)
		os.Exit(1)
	}

	// Unreachable: runInContainer execs on success.
	os.Exit(1)
}

func runInContainer(layout *paths.Layout, req *RunRequest) error {
	rootfsLower := layout.RootfsLower(req.Name)
	rootfs := layout.Rootfs(req.Name)

	if err := fsdriver.TouchDir(rootfsLower); err != nil {
		return err
	}
	if err := fsdriver.TouchDir(rootfs); err != nil {
		return err
	}

	arch := alpineArch(runtime.GOARCH)
	version := req.AlpineVersion
	if version == "" {
		version = "3.20"
	}

	provisioner := alpine.New(layout)
	if err := provisioner.EnsureCached(version, arch); err != nil {
		return err
	}
	if err := provisioner.ExtractTo(version, arch, rootfsLower); err != nil {
		return err
	}

	if err := fsdriver.BindMountRW(rootfsLower, rootfs); err != nil {
		return err
	}

	for _, dev := range []string{"null", "zero", "random", "urandom"} {
		hostDev := filepath.Join("/dev", dev)
		guestDev := filepath.Join(rootfs, "dev", dev)
		if err := fsdriver.BindMountDev(hostDev, guestDev); err != nil {
			return err
		}
	}

	tmpDir := layout.Tmp(req.Name)
	if err := fsdriver.TouchDir(tmpDir); err != nil {
		return err
	}
	if err := fsdriver.BindMountRW(tmpDir, filepath.Join(rootfs, "tmp")); err != nil {
		return err
	}

	for _, m := range req.RWMounts {
		if err := bindUserMount(m, rootfs, false); err != nil {
			return err
		}
	}
	for _, m := range req.ROMounts {
		if err := bindUserMount(m, rootfs, true); err != nil {
			return err
		}
	}

	if err := unix.Chroot(rootfs); err != nil {
		return err
	}
	if err := unix.Chdir("/app"); err != nil {
		return err
	}

	if len(req.Packages) > 0 {
		if err := installPackages(req.Packages); err != nil {
			return err
		}
	}

	if req.Immutable {
		if err := fsdriver.RemountRO("/"); err != nil {
			return err
		}
	}

	argv0, err := exec.LookPath("sh")
	if err != nil {
		argv0 = "/bin/sh"
	}

	// Exec with a cleared environment: EnvVars is parsed but unused here,
	// matching the guest running with no inherited or injected variables.
	return unix.Exec(argv0, []string{"sh", "-c", req.Command}, nil)
}

func bindUserMount(m MountPair, rootfs string, readonly bool) error {
	hostPath, err := filepath.Abs(m.Host)
	if err != nil {
		return err
	}

	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}

	guestPath := filepath.Join(rootfs, m.Guest)

	if info.IsDir() {
		if err := fsdriver.TouchDir(guestPath); err != nil {
			return err
		}
	} else {
		if err := fsdriver.TouchDir(filepath.Dir(guestPath)); err != nil {
			return err
		}
		if err := fsdriver.Touch(guestPath); err != nil {
			return err
		}
	}

	if readonly {
		return fsdriver.BindMountRO(hostPath, guestPath)
	}
	return fsdriver.BindMountRW(hostPath, guestPath)
}

func installPackages(packages []string) error {
	updateCmd := exec.Command("apk", "update")
	updateCmd.Env = []string{}
	if err := updateCmd.Run(); err != nil {
		return err
	}

	addArgs := append([]string{"add"}, packages...)
	addCmd := exec.Command("apk", addArgs...)
	addCmd.Env = []string{}
	return addCmd.Run()
}
