// Package log holds the process-wide slog logger used by solvx.
//
// Commands log at warn by default. The level and the text/json format come
// from the log.level and log.format settings and the -v/-q flags.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	current atomic.Pointer[slog.Logger]
	level   = new(slog.LevelVar)

	mu     sync.Mutex
	sink   io.Writer = os.Stderr
	asJSON bool
)

func init() {
	level.Set(slog.LevelWarn)
	install()
}

// install rebuilds the logger. Callers other than init hold mu.
func install() {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		current.Store(slog.New(slog.NewJSONHandler(sink, opts)))
		return
	}
	current.Store(slog.New(slog.NewTextHandler(sink, opts)))
}

// SetVerbose switches between debug and the warn default.
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelWarn)
}

// SetQuiet raises the level to error. SetQuiet(false) is a no-op.
func SetQuiet(quiet bool) {
	if quiet {
		level.Set(slog.LevelError)
	}
}

// SetLevel accepts debug, info, warn (or warning) and error in any case.
// Anything else leaves the level alone.
func SetLevel(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	switch name {
	case "debug", "info", "warn", "error":
		_ = level.UnmarshalText([]byte(name))
	}
}

// SetFormat selects JSON output for "json" and text for anything else.
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	asJSON = strings.EqualFold(format, "json")
	install()
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
	install()
}

func Debug(msg string, args ...any) { current.Load().Debug(msg, args...) }

func Warn(msg string, args ...any) { current.Load().Warn(msg, args...) }

func Error(msg string, args ...any) { current.Load().Error(msg, args...) }

// With returns the global logger with args attached.
func With(args ...any) *slog.Logger { return current.Load().With(args...) }

// Component returns l, or the global logger tagged component=name when l is
// nil. Components call it on the logger passed in their options.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l != nil {
		return l
	}
	return With("component", name)
}
