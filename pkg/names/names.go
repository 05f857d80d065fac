// Package names generates haiku-style container names (adjective-noun)
// for RunRequests that don't specify one.
package names

import (
	"fmt"
	"math/rand"
)

var adjectives = []string{
	"autumn", "hidden", "bitter", "misty", "silent", "empty", "dry",
	"patient", "twilight", "proud", "lively", "polished", "restless",
	"solitary", "withered", "wandering", "young", "holy", "broad",
	"small", "damp", "long", "round", "sparkling",
}

var nouns = []string{
	"waterfall", "river", "breeze", "moon", "rain", "wind", "sea",
	"morning", "snow", "lake", "sunset", "pine", "shadow", "leaf",
	"dawn", "glitter", "forest", "hill", "cloud", "meadow", "sun",
	"glade", "bird", "firefly",
}

// Generate returns a random "adjective-noun" name. It is not guaranteed
// unique; callers (the engine's pre-run existence check) are
// responsible for rejecting collisions.
func Generate() string {
	adjective := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	return fmt.Sprintf("%s-%s", adjective, noun)
}
