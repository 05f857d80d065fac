package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/queer/atsi/pkg/engine"
	"github.com/queer/atsi/pkg/errs"
)

// parsePort parses a "host:guest" pair into a PortPair. Malformed
// values (wrong separator count, non-numeric, out of uint16 range) are
// fatal to the current invocation.
func parsePort(s string) (engine.PortPair, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return engine.PortPair{}, errs.Errorf(errs.KindMalformedArg, "malformed port mapping %q, expected H:G", s)
	}

	host, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return engine.PortPair{}, errs.Wrapf(err, errs.KindMalformedArg, "malformed host port in %q", s)
	}
	guest, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return engine.PortPair{}, errs.Wrapf(err, errs.KindMalformedArg, "malformed guest port in %q", s)
	}

	return engine.PortPair{Host: uint16(host), Guest: uint16(guest)}, nil
}

// formatPort is the inverse of parsePort; H:G parse -> format is the
// identity for all valid pairs.
func formatPort(p engine.PortPair) string {
	return fmt.Sprintf("%d:%d", p.Host, p.Guest)
}

// parseMount parses a "host:guest" pair into a MountPair.
func parseMount(s string) (engine.MountPair, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return engine.MountPair{}, errs.Errorf(errs.KindMalformedArg, "malformed mount %q, expected src:dst", s)
	}
	return engine.MountPair{Host: parts[0], Guest: parts[1]}, nil
}

// parseEnv parses a "K=V" assignment.
func parseEnv(s string) (string, string, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", errs.Errorf(errs.KindMalformedArg, "malformed env assignment %q, expected K=V", s)
	}
	return parts[0], parts[1], nil
}

func parsePorts(values []string) ([]engine.PortPair, error) {
	ports := make([]engine.PortPair, 0, len(values))
	for _, v := range values {
		p, err := parsePort(v)
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func parseMounts(values []string) ([]engine.MountPair, error) {
	mounts := make([]engine.MountPair, 0, len(values))
	for _, v := range values {
		m, err := parseMount(v)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

func parseEnvVars(values []string) (map[string]string, error) {
	envVars := make(map[string]string, len(values))
	for _, v := range values {
		k, val, err := parseEnv(v)
		if err != nil {
			return nil, err
		}
		envVars[k] = val
	}
	return envVars, nil
}
