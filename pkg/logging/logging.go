// Package logging builds the structured logger shared by the three
// server entrypoints, picking a plain formatter when stderr isn't a
// terminal (the same TTY check the teacher's progress reporter uses
// to decide whether to draw dynamic output).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// New returns a logrus.Logger writing to stderr, with colors enabled
// only when stderr is attached to a terminal.
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   !term.IsTerminal(int(os.Stderr.Fd())),
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return log
}
