// Package reactor runs the single-threaded readiness loop that drives every
// socket in the server. It knows nothing about protocols: handlers expose a
// descriptor, a "has output" predicate and read/write hooks.
package reactor

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/sys/unix"
)

// Handler is one pollable endpoint. FD returns -1 once the handler has
// closed its descriptor; the reactor then drops it.
type Handler interface {
	FD() int
	Flush()
	ReadReady()
	WriteReady()
	OutWaiting() bool
	DisconnectWaiting() bool
	CompleteDisconnect()
}

// Pauser is implemented by handlers that can stop asking for input for a
// while. Output readiness is still polled.
type Pauser interface {
	Paused() bool
}

// Reactor multiplexes a dynamic set of handlers. It is not safe for
// concurrent use; Register may be called from inside handler callbacks.
type Reactor struct {
	active  []Handler
	pending []Handler
	fds     []unix.PollFd
}

// New creates an empty reactor.
func New() *Reactor {
	return &Reactor{}
}

// Register adds h. It becomes active at the start of the next Poll.
func (r *Reactor) Register(h Handler) {
	r.pending = append(r.pending, h)
}

// Len returns the number of active handlers.
func (r *Reactor) Len() int {
	return len(r.active)
}

// Poll runs one cycle: activate new handlers, flush or finish closing each
// one, wait up to timeoutMs for readiness (negative waits forever, zero
// returns immediately) and dispatch the ready hooks. It returns the number
// of ready descriptors, or -1 and the error if the wait failed.
func (r *Reactor) Poll(timeoutMs int) (int, error) {
	if len(r.pending) > 0 {
		r.active = append(r.active, r.pending...)
		clear(r.pending)
		r.pending = r.pending[:0]
	}

	live := r.active[:0]
	for _, h := range r.active {
		if !h.DisconnectWaiting() {
			h.Flush()
		} else if !h.OutWaiting() {
			h.CompleteDisconnect()
		}
		if h.FD() == -1 {
			continue
		}
		live = append(live, h)
	}
	clear(r.active[len(live):])
	r.active = live

	r.fds = r.fds[:0]
	for _, h := range r.active {
		events := int16(unix.POLLIN)
		if p, ok := h.(Pauser); ok && p.Paused() {
			events = 0
		}
		if h.OutWaiting() {
			events |= unix.POLLOUT
		}
		r.fds = append(r.fds, unix.PollFd{Fd: int32(h.FD()), Events: events})
	}

	var n int
	var err error
	for {
		n, err = unix.Poll(r.fds, timeoutMs)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		log.Printf("reactor: poll failed: %v", err)
		return -1, fmt.Errorf("reactor: poll: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	// Handlers registered from callbacks are in r.pending, so r.active is
	// stable for the duration of the dispatch loop.
	for i, h := range r.active {
		rev := r.fds[i].Revents
		if rev == 0 || rev&unix.POLLNVAL != 0 {
			continue
		}
		if rev&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			h.ReadReady()
		}
		if rev&unix.POLLOUT != 0 && h.FD() != -1 {
			h.WriteReady()
		}
	}
	return n, nil
}
