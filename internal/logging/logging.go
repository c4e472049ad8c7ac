// Package logging provides per-module logrus loggers sharing one master logger.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// ModuleField is the field naming the module that produced an entry.
const ModuleField = "_module"

var master = newMaster()

func newMaster() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	l.SetLevel(logrus.InfoLevel)

	return l
}

// Logger is a module logger.
type Logger struct {
	*logrus.Entry
}

// MustGetLogger returns the logger for module.
func MustGetLogger(module string) *Logger {
	if module == "" {
		panic("logging: empty module name")
	}

	return &Logger{Entry: master.WithField(ModuleField, module)}
}

// LevelFromString parses a level name such as "debug" or "warn".
func LevelFromString(s string) (logrus.Level, error) {
	return logrus.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
}

// SetLevel sets the level of every module logger.
func SetLevel(level logrus.Level) {
	master.SetLevel(level)
}

// SetOutput redirects every module logger.
func SetOutput(w io.Writer) {
	master.SetOutput(w)
}

// SetJSON switches every module logger to JSON output.
func SetJSON(enabled bool) {
	if enabled {
		master.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	master.SetFormatter(newMaster().Formatter)
}

// AddHook adds a hook to the master logger.
func AddHook(hook logrus.Hook) {
	master.AddHook(hook)
}

// Discard silences all module loggers, for tests and the CLI's quiet mode.
func Discard() {
	master.SetOutput(io.Discard)
}
