package names

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateProducesAdjectiveDashNoun(t *testing.T) {
	for i := 0; i < 50; i++ {
		name := Generate()
		parts := strings.Split(name, "-")
		assert.Len(t, parts, 2)
		assert.Contains(t, adjectives, parts[0])
		assert.Contains(t, nouns, parts[1])
	}
}
