package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlpineArchMapsKnownGoarches(t *testing.T) {
	type scenario struct {
		goarch string
		want   string
	}

	scenarios := []scenario{
		{"amd64", "x86_64"},
		{"arm64", "aarch64"},
		{"riscv64", "riscv64"},
	}

	for _, s := range scenarios {
		assert.Equal(t, s.want, alpineArch(s.goarch))
	}
}
