// Package slirp supervises the user-mode network helper: caching its
// binary, spawning it attached to a container's PID, and driving its
// UNIX control socket to install port forwards.
package slirp

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-errors/errors"
	"github.com/jesseduffield/kill"

	"github.com/queer/atsi/pkg/errs"
	"github.com/queer/atsi/pkg/paths"
)

const (
	binaryURL = "https://github.com/rootless-containers/slirp4netns/releases/download/v1.2.0/slirp4netns-x86_64"
	userAgent = "atsi (https://github.com/queer/atsi)"

	dialRetries  = 100
	dialInterval = time.Millisecond
)

// Supervisor owns the lifecycle of one container's network helper.
type Supervisor struct {
	Layout *paths.Layout
	Client *http.Client
}

// New returns a Supervisor using http.DefaultClient.
func New(layout *paths.Layout) *Supervisor {
	return &Supervisor{Layout: layout, Client: http.DefaultClient}
}

// EnsureCached downloads the helper binary into the cache (if absent)
// with exclusive-create semantics, then chmods it to 0755.
func (s *Supervisor) EnsureCached() error {
	binPath := s.Layout.SlirpBinaryPath()

	if _, err := os.Stat(binPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, 0)
	}

	req, err := http.NewRequest(http.MethodGet, binaryURL, nil)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(binPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return errors.Wrap(err, 0)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return errors.Wrap(err, 0)
	}
	f.Close()

	return os.Chmod(binPath, 0o755)
}

// Spawn launches the helper attached to targetPID, configuring the
// guest's tap0 device with MTU 65520, disabling host loopback exposure,
// and binding its control socket at the container's namespaced path.
// Stdout/stderr are discarded. The returned *exec.Cmd has already been
// started; its Process.Pid is what callers persist as slirp_pid.
func (s *Supervisor) Spawn(name string, targetPID int) (*exec.Cmd, error) {
	socketPath := paths.SlirpSocketPath(name)

	cmd := exec.Command(
		s.Layout.SlirpBinaryPath(),
		"--configure",
		"--mtu", "65520",
		"--disable-host-loopback",
		"--api-socket", socketPath,
		strconv.Itoa(targetPID),
		"tap0",
	)
	kill.PrepareForChildren(cmd)

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return cmd, nil
}

// Terminate sends SIGKILL to the helper's process group. A nil or
// unstarted command is a no-op; for a helper that has already exited
// the kill error is returned to the caller.
func Terminate(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return kill.Kill(cmd)
}

type hostfwdCommand struct {
	Execute   string             `json:"execute"`
	Arguments hostfwdArgCommand `json:"arguments"`
}

type hostfwdArgCommand struct {
	Proto     string `json:"proto"`
	HostIP    string `json:"host_ip"`
	HostPort  uint16 `json:"host_port"`
	GuestPort uint16 `json:"guest_port"`
}

// AddPortForward connects to the container's control socket and sends
// an add_hostfwd command, returning the response verbatim. Because the
// helper creates its socket asynchronously after launch, connection is
// retried with a 1ms backoff for up to 100 attempts.
func AddPortForward(name string, hostPort, guestPort uint16) (string, error) {
	socketPath := paths.SlirpSocketPath(name)

	var conn net.Conn
	var err error
	for attempt := 0; attempt < dialRetries; attempt++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		time.Sleep(dialInterval)
	}
	if err != nil {
		return "", errs.Wrapf(err, errs.KindSlirpSocketCouldntBeFound, "control socket %s never appeared after %d attempts", socketPath, dialRetries)
	}
	defer conn.Close()

	cmd := hostfwdCommand{
		Execute: "add_hostfwd",
		Arguments: hostfwdArgCommand{
			Proto:     "tcp",
			HostIP:    "127.0.0.1",
			HostPort:  hostPort,
			GuestPort: guestPort,
		},
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}

	if _, err := conn.Write(body); err != nil {
		return "", errors.Wrap(err, 0)
	}

	response, err := io.ReadAll(conn)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}

	return string(response), nil
}
