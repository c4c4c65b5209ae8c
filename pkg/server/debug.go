package server

import (
	"log"
	"sync/atomic"

	"github.com/crystal-mush/sourcemud/pkg/telnet"
)

// traceOn is the process-wide debug switch, fed by the debug config key
// (and so by -debug and MUD_DEBUG).
var traceOn atomic.Bool

// SetDebug switches debug output on or off. While on, telnet negotiation
// traces are routed through DebugLog and who shows per-session traffic.
func SetDebug(on bool) {
	if traceOn.Swap(on) == on {
		return
	}
	if on {
		telnet.SetDebugLogger(DebugLog)
		log.Printf("[DEBUG] Tracing telnet negotiation and session traffic")
	} else {
		telnet.SetDebugLogger(nil)
		log.Printf("[DEBUG] Tracing off")
	}
}

// IsDebug reports whether debug output is on.
func IsDebug() bool { return traceOn.Load() }

// DebugLog logs like log.Printf, but only while debug output is on.
func DebugLog(format string, args ...any) {
	if traceOn.Load() {
		log.Printf("[DEBUG] "+format, args...)
	}
}
