// Package logging configures the structured log stream the run loop emits
// one line per state transition into: start, success, non-zero exit,
// terminal failure, throttle activation, throttle recovery, calibration
// summary, final tally.
package logging

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// New builds a logrus logger at the given level, writing to w (os.Stderr in
// production, a buffer in tests). An unrecognized level falls back to info
// rather than erroring, since a bad --log-level flag should degrade, not
// abort a run that is otherwise ready to start.
func New(level string, w io.Writer) *logrus.Logger {
	if w == nil {
		w = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// Tally logs the end-of-run summary: completed count and failed count.
func Tally(log *logrus.Logger, completed, failed int) {
	log.WithFields(logrus.Fields{
		"completed": completed,
		"failed":    failed,
	}).Info("run complete")
}

// LogHostInfo logs the kernel name, release, and architecture the run is
// executing under, grounded on the teacher's config.GetSystemInfo. Useful
// context when a child's resource ceilings look off on an unfamiliar host.
func LogHostInfo(log *logrus.Logger) {
	var utsname unix.Utsname
	sysname, release, machine := "unknown", "unknown", "unknown"
	if err := unix.Uname(&utsname); err == nil {
		sysname = strings.TrimRight(string(utsname.Sysname[:]), "\x00")
		release = strings.TrimRight(string(utsname.Release[:]), "\x00")
		machine = strings.TrimRight(string(utsname.Machine[:]), "\x00")
	}
	log.WithFields(logrus.Fields{
		"os":      sysname,
		"release": release,
		"arch":    machine,
		"ncpus":   runtime.NumCPU(),
	}).Info("host info")
}
