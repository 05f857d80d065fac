package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queer/atsi/pkg/engine"
	"github.com/queer/atsi/pkg/errs"
)

func TestParsePortRoundTrip(t *testing.T) {
	type scenario struct {
		host uint16
		gst  uint16
	}

	scenarios := []scenario{
		{8080, 80},
		{0, 0},
		{65535, 1},
	}

	for _, s := range scenarios {
		formatted := formatPort(engine.PortPair{Host: s.host, Guest: s.gst})
		parsed, err := parsePort(formatted)
		assert.NoError(t, err)
		assert.Equal(t, s.host, parsed.Host)
		assert.Equal(t, s.gst, parsed.Guest)
	}
}

func TestParsePortRejectsMalformedValues(t *testing.T) {
	for _, bad := range []string{"8080", "8080:", ":80", "abc:80", "8080:xyz", "70000:80"} {
		_, err := parsePort(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, errs.KindMalformedArg, errs.GetKind(err))
	}
}

func TestParseMount(t *testing.T) {
	m, err := parseMount("/host/path:/guest/path")
	assert.NoError(t, err)
	assert.Equal(t, "/host/path", m.Host)
	assert.Equal(t, "/guest/path", m.Guest)

	_, err = parseMount("no-colon-here")
	assert.Error(t, err)
}

func TestParseEnvVars(t *testing.T) {
	envVars, err := parseEnvVars([]string{"FOO=bar", "BAZ=qux=extra"})
	assert.NoError(t, err)
	assert.Equal(t, "bar", envVars["FOO"])
	assert.Equal(t, "qux=extra", envVars["BAZ"])

	_, err = parseEnvVars([]string{"NOVALUE"})
	assert.Error(t, err)

	_, err = parseEnvVars([]string{"=novalue"})
	assert.Error(t, err)
}
