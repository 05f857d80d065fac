// Package registry enumerates persisted containers, probes liveness
// via /proc/<pid>, and purges dead ones (removing their root and
// signaling their guest and helper processes).
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/queer/atsi/pkg/engine"
	"github.com/queer/atsi/pkg/fsdriver"
	"github.com/queer/atsi/pkg/paths"
	"github.com/queer/atsi/pkg/utils"
)

// Registry lists and reaps containers under a single layout.
type Registry struct {
	Layout *paths.Layout
	Log    *logrus.Entry
}

// New returns a Registry.
func New(layout *paths.Layout, log *logrus.Entry) *Registry {
	return &Registry{Layout: layout, Log: log}
}

// Entry is one enumerated container, live or dead.
type Entry struct {
	Name  string
	State *engine.PersistentState
	Live  bool
}

// List enumerates containers, purges dead ones, and returns the live
// set. Callers render it as JSON or as a table per the jsonFlag they
// were given on the CLI.
func (r *Registry) List() ([]Entry, error) {
	containersDir := r.Layout.ContainersDir()

	dirEntries, err := os.ReadDir(containersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	driver := fsdriver.New(r.Layout)

	var live []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		name := de.Name()

		state, err := engine.LoadState(r.Layout.PersistenceFile(name))
		if err != nil {
			// Missing or unparseable state.json: the entry is corrupt,
			// purge it outright.
			r.purgeRoot(driver, name)
			continue
		}

		if isAlive(state.PID) {
			live = append(live, Entry{Name: name, State: state, Live: true})
			continue
		}

		r.purge(driver, name, state)
	}

	return live, nil
}

func (r *Registry) purge(driver *fsdriver.Driver, name string, state *engine.PersistentState) {
	signalProcess(state.PID)
	signalProcess(state.SlirpPID)
	r.purgeRoot(driver, name)
}

func (r *Registry) purgeRoot(driver *fsdriver.Driver, name string) {
	if err := driver.CleanupRoot(name); err != nil {
		r.Log.WithError(err).WithField("name", name).Warn("failed to purge container root")
		return
	}
	r.Log.WithField("name", name).Info("purged")
}

// isAlive reports whether /proc/<pid> exists. This is a coarse probe:
// PID reuse can make a stale PID read as live.
func isAlive(pid int) bool {
	_, err := os.Stat(filepath.Join("/proc", fmt.Sprint(pid)))
	return err == nil
}

func signalProcess(pid int) {
	if pid <= 0 {
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)
}

// RenderJSON formats entries as a JSON array of PersistentState.
func RenderJSON(entries []Entry) (string, error) {
	states := make([]*engine.PersistentState, len(entries))
	for i, e := range entries {
		states[i] = e.State
	}
	body, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// RenderTable formats entries as a three-column NAME | PID | COMMAND
// table.
func RenderTable(entries []Entry) (string, error) {
	rows := make([][]string, 0, len(entries)+1)
	rows = append(rows, []string{
		utils.ColoredString("NAME", color.FgGreen),
		utils.ColoredString("PID", color.FgGreen),
		utils.ColoredString("COMMAND", color.FgGreen),
	})

	for _, e := range entries {
		rows = append(rows, []string{
			e.Name,
			fmt.Sprint(e.State.PID),
			e.State.Command,
		})
	}

	return utils.RenderTable(rows)
}
