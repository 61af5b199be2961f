// Package logx provides the dispatcher's leveled logging, backed by
// pterm the same way the rest of this module's ancestry does.
package logx

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Debugf logs dispatcher-internal detail: stale or ignored packets and
// failed protocol replies.
func Debugf(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

// Infof logs lifecycle milestones (listening, connection established or
// closed).
func Infof(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

// Warnf logs tolerated protocol anomalies that are not fatal.
func Warnf(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs fatal or caller-surfaced failures.
func Errorf(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug raises the logger's verbosity to include Debugf output.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
