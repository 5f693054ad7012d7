// Package xlog is the engine's logging surface: a thin, repository-aware
// wrapper around logrus exposing a three-tier call surface (logit/croak/
// warn), so every warning and fatal class has exactly one call site.
package xlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetOutput redirects all engine log output, e.g. to the file the driver
// opens for its --log-file flag.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// SetDebug turns on debug-level chatter (per-mark and per-merge tracing).
func SetDebug(on bool) {
	if on {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}

func fields(repo string) logrus.Fields {
	if repo == "" {
		return logrus.Fields{}
	}
	return logrus.Fields{"repo": repo}
}

// Logit records a routine, non-alarming engine event: reloaded a branch,
// checkpointed, created or re-created a tag.
func Logit(repo string, format string, args ...interface{}) {
	std.WithFields(fields(repo)).Infof(format, args...)
}

// Debugf records fine-grained tracing, off by default.
func Debugf(repo string, format string, args ...interface{}) {
	std.WithFields(fields(repo)).Debugf(format, args...)
}

// Warn records a degraded-but-continuing condition: Warning
// class. The caller proceeds with heuristic behavior after this call.
func Warn(repo string, format string, args ...interface{}) {
	std.WithFields(fields(repo)).Warnf(format, args...)
}

// Croak records a Fatal-to-operation condition: the caller returns a
// failure status to its own caller after logging this.
func Croak(repo string, format string, args ...interface{}) {
	std.WithFields(fields(repo)).Errorf(format, args...)
}
