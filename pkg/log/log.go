package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger. In debug mode (or with DEBUG=TRUE) it
// writes JSON lines to development.log inside dir; otherwise its level
// is set to error and its output goes to io.Discard, so nothing is
// written at any level.
func NewLogger(dir string, debug bool, version string) *logrus.Entry {
	var l *logrus.Logger
	if debug || os.Getenv("DEBUG") == "TRUE" {
		l = newDevelopmentLogger(dir)
	} else {
		l = newProductionLogger()
	}

	l.Formatter = &logrus.JSONFormatter{}

	return l.WithFields(logrus.Fields{
		"debug":   debug,
		"version": version,
	})
}

func getLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger(dir string) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(getLogLevel())

	file, err := os.OpenFile(filepath.Join(dir, "development.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Println("unable to log to file")
		os.Exit(1)
	}
	l.SetOutput(file)

	return l
}

func newProductionLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	l.SetLevel(logrus.ErrorLevel)
	return l
}
