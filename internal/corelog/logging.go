// Package corelog provides the process-wide structured logger used by
// every core package, plus child loggers scoped to a single node or scope.
package corelog

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func get() *logger {
	if singleton == nil {
		once.Do(func() {
			l := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      time.RFC3339,
				Prefix:          "vixen",
			})
			l.SetLevel(log.InfoLevel)
			singleton = &logger{l}
		})
	}
	return singleton
}

// SetLevel adjusts the global verbosity. Accepted values mirror
// charmbracelet/log: "debug", "info", "warn", "error", "fatal".
func SetLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		get().Warnf("unknown log level %q, keeping current level", level)
		return
	}
	get().SetLevel(lvl)
}

func Debug(msg string, args ...interface{}) { get().Debugf(msg, args...) }
func Info(msg string, args ...interface{})  { get().Infof(msg, args...) }
func Warn(msg string, args ...interface{})  { get().Warnf(msg, args...) }
func Error(msg string, args ...interface{}) { get().Errorf(msg, args...) }
func Fatal(msg string, args ...interface{}) { get().Fatalf(msg, args...) }

// For scopes the node model which requires "an optional per-node logger"
// (spec.md 3.1), returning a child logger tagged with the given key/value
// pairs, e.g. For("node", name).
func For(keyvals ...interface{}) *log.Logger {
	return get().With(keyvals...)
}
