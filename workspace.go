package labkit

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// logger receives workspace lifecycle events at debug level. Silent by
// default; see SetLogger and NoLogging.
var logger log.Logger = log.NewNopLogger()

// SetLogger replaces the package logger and returns the previous one.
// Passing nil restores the silent default.
func SetLogger(l log.Logger) log.Logger {
	prev := logger
	if l == nil {
		l = log.NewNopLogger()
	}
	logger = l
	return prev
}

// NoLogging wraps fn so each invocation runs with the package logger
// silenced, restoring the previous logger afterwards even when fn fails.
func NoLogging(fn func() error) func() error {
	return func() error {
		prev := SetLogger(log.NewNopLogger())
		defer SetLogger(prev)
		return fn()
	}
}

// TempWorkspace creates a fresh temporary directory, switches the process
// working directory into it, and runs fn with the directory path. On return
// (normal or not) the working directory is restored first and the temporary
// directory is then removed with all contents.
//
// The working directory is process-global state: at most one workspace may
// be active per process, and concurrent use from multiple goroutines is the
// caller's bug. A failure to restore the working directory is reported even
// when fn succeeded, since it leaves the process in the wrong place.
func TempWorkspace(fn func(dir string) error) (err error) {
	home, err := os.Getwd()
	if err != nil {
		return err
	}

	temp, err := os.MkdirTemp("", "workspace-")
	if err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "created workspace", "dir", temp)

	// Restoration and removal must run on every unwind path, panics
	// included. Leave the directory before deleting it; removal of the
	// current working directory fails on some platforms.
	defer func() {
		if chdirErr := os.Chdir(home); chdirErr != nil {
			err = errors.Join(err, fmt.Errorf("labkit: restoring working directory: %w", chdirErr))
			return
		}
		if rmErr := os.RemoveAll(temp); rmErr != nil {
			err = errors.Join(err, rmErr)
			return
		}
		level.Debug(logger).Log("msg", "removed workspace", "dir", temp)
	}()

	if err := os.Chdir(temp); err != nil {
		return err
	}
	return fn(temp)
}

// TempDir wraps fn so every invocation runs in a clean temporary directory,
// passing fn's error through unchanged.
//
// With no extra argument, each call runs inside TempWorkspace: a fresh
// random directory that is removed after the call returns or fails.
//
// Passing any extra argument (the value is irrelevant, only its presence
// matters) selects debug mode for inspecting results:
//
//	run := TempDir(buildReport, "debug")
//
// In debug mode the directory is named deterministically after fn
// ("DEBUG_" plus the function's name) and created under the current
// directory rather than the system temp root. A leftover directory from a
// previous debug run is deleted and recreated empty before the call, and
// the directory is kept afterwards. The working directory is still restored
// on all paths. Deterministic naming means concurrent debug runs of the
// same function collide.
func TempDir(fn func() error, debug ...string) func() error {
	if len(debug) == 0 {
		return func() error {
			return TempWorkspace(func(string) error { return fn() })
		}
	}

	name := "DEBUG_" + funcName(fn)
	return func() error {
		return runInDebugDir(name, fn)
	}
}

// TempDirResult is TempDir for functions that return a value alongside the
// error; the value is passed through unchanged.
func TempDirResult[T any](fn func() (T, error), debug ...string) func() (T, error) {
	if len(debug) == 0 {
		return func() (T, error) {
			var out T
			err := TempWorkspace(func(string) error {
				var fnErr error
				out, fnErr = fn()
				return fnErr
			})
			return out, err
		}
	}

	name := "DEBUG_" + funcName(fn)
	return func() (T, error) {
		var out T
		err := runInDebugDir(name, func() error {
			var fnErr error
			out, fnErr = fn()
			return fnErr
		})
		return out, err
	}
}

// runInDebugDir recreates the named directory empty under the current
// directory, runs fn inside it, and restores the working directory without
// removing the directory afterwards.
func runInDebugDir(name string, fn func() error) (err error) {
	home, err := os.Getwd()
	if err != nil {
		return err
	}

	// Wipe any leftovers from a previous debug run.
	if err := os.RemoveAll(name); err != nil {
		return err
	}
	if err := os.Mkdir(name, 0o755); err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "created debug workspace", "dir", name)

	if err := os.Chdir(name); err != nil {
		return err
	}
	defer func() {
		if chdirErr := os.Chdir(home); chdirErr != nil {
			err = errors.Join(err, fmt.Errorf("labkit: restoring working directory: %w", chdirErr))
		}
	}()

	return fn()
}

// funcName derives a deterministic, filesystem-safe name for fn from its
// runtime symbol, dropping the package path prefix.
func funcName(fn any) string {
	name := "func"
	if pc := reflect.ValueOf(fn).Pointer(); pc != 0 {
		if f := runtime.FuncForPC(pc); f != nil {
			name = f.Name()
		}
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '*':
			return -1
		default:
			return r
		}
	}, name)
}
