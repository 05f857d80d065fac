package engine

import (
	"encoding/json"
	"os"

	"github.com/go-errors/errors"
)

// PersistentState is serialized per container at <container_root>/state.json.
// Readers must accept either schema revision: the first revision has no
// Opts field, the second embeds the full RunRequest for display.
type PersistentState struct {
	Name     string      `json:"name"`
	Command  string      `json:"command"`
	Detach   bool        `json:"detach"`
	PID      int         `json:"pid"`
	SlirpPID int         `json:"slirp_pid"`
	Opts     *RunRequest `json:"opts,omitempty"`
}

// SaveState writes state to path as JSON.
func SaveState(path string, state *PersistentState) error {
	body, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, 0)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// SaveRequest writes req as JSON to path. Used to hand the full
// RunRequest to the re-exec'd clone child, since argv/env have size
// limits the package/mount lists could exceed.
func SaveRequest(path string, req *RunRequest) error {
	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return errors.Wrap(err, 0)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// LoadRequest reads and parses a RunRequest written by SaveRequest.
func LoadRequest(path string) (*RunRequest, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	var req RunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &req, nil
}

// LoadState reads and parses state.json at path. It accepts both the
// first-revision (no opts) and second-revision (with opts) documents;
// Opts is left nil when the field is absent.
func LoadState(path string) (*PersistentState, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	var state PersistentState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &state, nil
}
