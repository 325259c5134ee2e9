// Package monitoring holds the process-wide operational log hook used by
// the analysis pipeline for run summaries and drop warnings.
package monitoring

import "log"

// Logf emits an operational log line. It defaults to log.Printf; callers
// that embed the pipeline can redirect it with SetLogger, and tests mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the operational log hook. A nil f mutes logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
