// Package app wires together the logger and path layout the rest of
// atsi depends on.
package app

import (
	"github.com/sirupsen/logrus"

	"github.com/queer/atsi/pkg/log"
	"github.com/queer/atsi/pkg/paths"
)

// App bundles the dependencies atsi's commands are built against.
type App struct {
	Log    *logrus.Entry
	Layout *paths.Layout
}

// New resolves the path layout and logger and returns a ready App.
func New(debug bool, version string) (*App, error) {
	layout, err := paths.NewLayout()
	if err != nil {
		return nil, err
	}

	return &App{
		Log:    log.NewLogger(layout.CacheDir, debug, version),
		Layout: layout,
	}, nil
}
