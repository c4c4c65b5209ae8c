package telnet

// debugf receives verbose negotiation traces. It is silent until the
// server installs its logger with SetDebugLogger.
var debugf = func(format string, args ...any) {}

// SetDebugLogger installs fn as the destination for negotiation traces.
func SetDebugLogger(fn func(format string, args ...any)) {
	if fn == nil {
		fn = func(string, ...any) {}
	}
	debugf = fn
}
