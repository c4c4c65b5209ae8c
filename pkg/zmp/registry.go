package zmp

import (
	"errors"
	"strings"
	"sync"
)

// ErrInvalidName is returned by Add for an empty name or a nil handler.
var ErrInvalidName = errors.New("zmp: invalid command registration")

// Session is what a command handler may do to the connection that sent it.
type Session interface {
	SendZMP(args ...string)
	SetSupport(pkg string, supported bool)
	Inject(line string)
}

// HandlerFunc runs a command. args[0] is the command name.
type HandlerFunc func(s Session, args []string)

type command struct {
	name     string
	wildcard bool
	fn       HandlerFunc
}

// Registry is an append-only ordered command table. Lookup is a linear
// scan and the first registered entry that matches wins, so an exact
// command registered after an overlapping wildcard is never reached.
type Registry struct {
	mu       sync.RWMutex
	commands []command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers fn under name. A name ending in "." is a wildcard that
// matches every command under that package prefix.
func (r *Registry) Add(name string, fn HandlerFunc) error {
	if name == "" || fn == nil {
		return ErrInvalidName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command{
		name:     name,
		wildcard: strings.HasSuffix(name, "."),
		fn:       fn,
	})
	return nil
}

// Lookup finds the handler for a concrete command name.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.commands {
		if c.wildcard {
			if strings.HasPrefix(name, c.name) {
				return c.fn, true
			}
		} else if c.name == name {
			return c.fn, true
		}
	}
	return nil, false
}

// Match reports whether pattern is supported. A pattern ending in "." asks
// about a whole package and matches any registered name under it.
func (r *Registry) Match(pattern string) bool {
	if pattern == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkg := strings.HasSuffix(pattern, ".")
	for _, c := range r.commands {
		switch {
		case pkg && strings.HasPrefix(c.name, pattern):
			return true
		case c.name == pattern:
			return true
		case c.wildcard && strings.HasPrefix(pattern, c.name):
			return true
		}
	}
	return false
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch validates payload, finds its handler and runs it. It reports
// whether a handler ran; invalid or unknown payloads are dropped silently.
func (r *Registry) Dispatch(s Session, payload []byte) bool {
	if !Valid(payload) {
		return false
	}
	fn, ok := r.Lookup(commandName(payload))
	if !ok {
		return false
	}
	fn(s, Split(payload))
	return true
}
