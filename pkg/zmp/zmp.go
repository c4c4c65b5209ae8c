// Package zmp implements the Zenith MUD Protocol command format: a command
// name and its arguments packed as NUL-terminated strings inside a telnet
// subnegotiation, dispatched through an ordered registry.
package zmp

import (
	"bytes"
	"errors"
	"fmt"
)

// MaxArgs is the most arguments (command name included) Split returns.
const MaxArgs = 20

var (
	// ErrNoCommand is returned by Pack when called with no arguments.
	ErrNoCommand = errors.New("zmp: no command name")
	// ErrEmbeddedNUL is returned by Pack when an argument contains NUL.
	ErrEmbeddedNUL = errors.New("zmp: argument contains NUL")
)

// Valid reports whether payload is a well formed command: at least two
// bytes, a printable first byte and a trailing NUL.
func Valid(payload []byte) bool {
	if len(payload) < 2 {
		return false
	}
	return isPrint(payload[0]) && payload[len(payload)-1] == 0
}

// Pack joins args into a payload, terminating each with NUL.
func Pack(args ...string) ([]byte, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, ErrNoCommand
	}
	size := 0
	for _, a := range args {
		if bytes.IndexByte([]byte(a), 0) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrEmbeddedNUL, a)
		}
		size += len(a) + 1
	}
	buf := make([]byte, 0, size)
	for _, a := range args {
		buf = append(buf, a...)
		buf = append(buf, 0)
	}
	return buf, nil
}

// Split breaks a valid payload into its strings. Arguments past MaxArgs are
// dropped. An invalid payload yields nil.
func Split(payload []byte) []string {
	if !Valid(payload) {
		return nil
	}
	var args []string
	for len(payload) > 0 && len(args) < MaxArgs {
		i := bytes.IndexByte(payload, 0)
		args = append(args, string(payload[:i]))
		payload = payload[i+1:]
	}
	return args
}

// commandName returns the first NUL-terminated string of a valid payload.
func commandName(payload []byte) string {
	return string(payload[:bytes.IndexByte(payload, 0)])
}

func isPrint(c byte) bool {
	return c >= 0x20 && c < 0x7f
}
