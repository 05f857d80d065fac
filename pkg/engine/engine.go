// Package engine implements the container lifecycle: allocating a
// container root, cloning a child into fresh namespaces, assembling its
// rootfs and mounts inside the child, persisting state, and reaping on
// exit.
package engine

import (
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/queer/atsi/pkg/errs"
	"github.com/queer/atsi/pkg/fsdriver"
	"github.com/queer/atsi/pkg/paths"
	"github.com/queer/atsi/pkg/slirp"
)

// reexecEnvVar, when set to "1", tells main() to skip CLI parsing and
// jump straight to RunInContainer as the clone child's entrypoint.
const reexecEnvVar = "ATSI_REEXEC"

// reexecNameEnvVar carries the container name to the re-exec'd child.
const reexecNameEnvVar = "ATSI_REEXEC_NAME"

// Engine runs containers against a single path layout.
type Engine struct {
	Layout *paths.Layout
	Log    *logrus.Entry
}

// New returns an Engine.
func New(layout *paths.Layout, log *logrus.Entry) *Engine {
	return &Engine{Layout: layout, Log: log}
}

// Run allocates the container root, clones a child into fresh
// namespaces, supervises the network helper and the child's lifetime,
// and returns once the guest has exited and all state has been reaped.
func (e *Engine) Run(req *RunRequest) error {
	driver := fsdriver.New(e.Layout)

	root, err := driver.ContainerRoot(req.Name)
	if err != nil {
		return err
	}

	child, err := e.clone(req)
	if err != nil {
		_ = driver.CleanupRoot(req.Name)
		return errs.Wrapf(err, errs.KindCloneFailure, "clone failed for container %q", req.Name)
	}

	helperSupervisor := slirp.New(e.Layout)
	if err := helperSupervisor.EnsureCached(); err != nil {
		_ = child.Process.Kill()
		_ = driver.CleanupRoot(req.Name)
		return err
	}

	helperCmd, err := helperSupervisor.Spawn(req.Name, child.Process.Pid)
	if err != nil {
		_ = child.Process.Kill()
		_ = driver.CleanupRoot(req.Name)
		return err
	}

	state := &PersistentState{
		Name:     req.Name,
		Command:  req.Command,
		Detach:   req.Detach,
		PID:      child.Process.Pid,
		SlirpPID: helperCmd.Process.Pid,
		Opts:     req,
	}
	if err := SaveState(driver.PersistenceFile(req.Name), state); err != nil {
		_ = child.Process.Kill()
		_ = slirp.Terminate(helperCmd)
		_ = driver.CleanupRoot(req.Name)
		return err
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			_ = slirp.Terminate(helperCmd)
			_ = driver.CleanupRoot(req.Name)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		e.Log.Warn("interrupted, cleaning up")
		cleanup()
	}()

	// Install port forwards in declaration order, asynchronously, and
	// await the helper's exit in the background. PersistentState was
	// already written above: ps may observe this container before its
	// forwards are live. That ordering is intentional, not a bug.
	go func() {
		for _, p := range req.Ports {
			if _, err := slirp.AddPortForward(req.Name, p.Host, p.Guest); err != nil {
				e.Log.WithError(err).Warn("failed to install port forward")
			}
		}
		_ = helperCmd.Wait()
	}()

	e.waitForChild(child)

	cleanup()

	e.Log.WithField("name", req.Name).WithField("root", root).Info("container purged")

	return nil
}

// waitForChild waits on the child PID, accepting an exit (normal or by
// signal) or ECHILD (already reaped elsewhere, in which case it sleeps
// 100ms to let stdio buffers flush). Any other transient status polls
// again after 100ms.
func (e *Engine) waitForChild(child *exec.Cmd) {
	for {
		var status unix.WaitStatus
		_, err := unix.Wait4(child.Process.Pid, &status, 0, nil)
		if err == nil {
			if status.Exited() || status.Signaled() {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if errors.Is(err, syscall.ECHILD) {
			time.Sleep(100 * time.Millisecond)
			return
		}

		time.Sleep(100 * time.Millisecond)
	}
}

// clone re-execs the current binary with the re-exec environment
// variables set, and new pid/uts/mount/net/user/cgroup namespaces, per
// the container engine's clone step. Go cannot call the raw clone(2)
// syscall with a user-supplied stack and callback the way C/Rust can,
// so self re-exec plus SysProcAttr.Cloneflags is the idiomatic Go
// substitute: the child observes the re-exec env vars at the top of
// main() and jumps straight to RunInContainer instead of parsing CLI
// flags.
func (e *Engine) clone(req *RunRequest) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	// The child reconstructs its RunRequest from this sidecar file
	// rather than argv/env, since package and mount lists have no
	// fixed bound.
	if err := SaveRequest(requestSidecarPath(e.Layout.PersistenceFile(req.Name)), req); err != nil {
		return nil, err
	}

	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), reexecEnvVar+"=1", reexecNameEnvVar+"="+req.Name)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: unix.CLONE_NEWPID |
			unix.CLONE_NEWUTS |
			unix.CLONE_NEWNS |
			unix.CLONE_NEWNET |
			unix.CLONE_NEWUSER |
			unix.CLONE_NEWCGROUP,
		Pdeathsig: syscall.SIGKILL,
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return cmd, nil
}

// requestSidecarPath derives the RunRequest sidecar file from the
// container's persistence file path.
func requestSidecarPath(persistenceFile string) string {
	return persistenceFile + ".req"
}

// IsReexec reports whether the current process was launched as a
// clone child and should run RunInContainer instead of the normal CLI.
func IsReexec() bool {
	return os.Getenv(reexecEnvVar) == "1"
}

// ReexecName returns the container name passed to a re-exec'd child.
func ReexecName() string {
	return os.Getenv(reexecNameEnvVar)
}
