// Package socket wraps a non-blocking stream descriptor with a growable
// output queue and a drain-then-close disconnect lifecycle. A Conn is a
// reactor.Handler; bytes it reads go to its Protocol.
package socket

import (
	"errors"
	"log"
	"net/netip"

	"golang.org/x/sys/unix"
)

const (
	// ReadSize is the largest single read.
	ReadSize = 2048
	// GrowStep is the granularity of output queue growth.
	GrowStep = 1024
)

// Protocol consumes what a Conn reads and is asked to flush once per
// reactor cycle.
type Protocol interface {
	Input(data []byte)
	Hangup()
	Flush()
}

// Conn is one client connection. It is owned by the reactor goroutine.
type Conn struct {
	fd         int
	peer       netip.AddrPort
	proto      Protocol
	out        []byte
	rbuf       []byte
	disconnect bool
	hungUp     bool

	// InBytes and OutBytes count traffic over the lifetime of the socket.
	InBytes  uint64
	OutBytes uint64
}

// New wraps an already non-blocking descriptor.
func New(fd int, peer netip.AddrPort) *Conn {
	return &Conn{
		fd:   fd,
		peer: peer,
		rbuf: make([]byte, ReadSize),
	}
}

// SetProtocol attaches the consumer of this connection's input.
func (c *Conn) SetProtocol(p Protocol) { c.proto = p }

// Peer returns the remote address.
func (c *Conn) Peer() netip.AddrPort { return c.peer }

// FD implements reactor.Handler.
func (c *Conn) FD() int { return c.fd }

// OutWaiting reports whether queued output remains.
func (c *Conn) OutWaiting() bool { return len(c.out) > 0 }

// DisconnectWaiting reports whether RequestDisconnect was called.
func (c *Conn) DisconnectWaiting() bool { return c.disconnect }

// Pending returns the number of queued output bytes.
func (c *Conn) Pending() int { return len(c.out) }

// Flush hands the per-cycle flush to the protocol.
func (c *Conn) Flush() {
	if c.proto != nil {
		c.proto.Flush()
	}
}

// RequestDisconnect marks the connection for closing. Input is discarded
// from now on; the socket closes once the output queue has drained.
func (c *Conn) RequestDisconnect() {
	c.disconnect = true
}

// Buffer queues data for writing. The queue grows in GrowStep increments.
func (c *Conn) Buffer(data []byte) {
	if len(data) == 0 || c.fd == -1 {
		return
	}
	need := len(c.out) + len(data)
	if need > cap(c.out) {
		grown := make([]byte, len(c.out), (need/GrowStep+1)*GrowStep)
		copy(grown, c.out)
		c.out = grown
	}
	c.out = append(c.out, data...)
}

// Write implements io.Writer over Buffer. It never fails.
func (c *Conn) Write(p []byte) (int, error) {
	c.Buffer(p)
	return len(p), nil
}

// ReadReady performs one bounded read and forwards the bytes.
func (c *Conn) ReadReady() {
	if c.fd == -1 {
		return
	}
	n, err := unix.Read(c.fd, c.rbuf)
	if err != nil {
		if retryable(err) {
			return
		}
		log.Printf("socket %s: read: %v", c.peer, err)
		c.hangup()
		return
	}
	if n == 0 {
		c.hangup()
		return
	}
	c.InBytes += uint64(n)
	if !c.disconnect && c.proto != nil {
		c.proto.Input(c.rbuf[:n])
	}
}

// WriteReady writes as much queued output as the kernel accepts.
func (c *Conn) WriteReady() {
	if c.fd == -1 || len(c.out) == 0 {
		return
	}
	n, err := unix.Write(c.fd, c.out)
	if err != nil {
		if retryable(err) {
			return
		}
		log.Printf("socket %s: write: %v", c.peer, err)
		c.hangup()
		return
	}
	c.OutBytes += uint64(n)
	rest := copy(c.out, c.out[n:])
	c.out = c.out[:rest]
	if rest == 0 && cap(c.out) > GrowStep {
		c.out = nil
	}
}

// CompleteDisconnect shuts down and closes the descriptor.
func (c *Conn) CompleteDisconnect() {
	if c.fd == -1 {
		return
	}
	unix.Shutdown(c.fd, unix.SHUT_RDWR)
	unix.Close(c.fd)
	c.fd = -1
	c.out = nil
}

// hangup tears the socket down after a transport error or EOF and tells
// the protocol exactly once.
func (c *Conn) hangup() {
	unix.Close(c.fd)
	c.fd = -1
	c.out = nil
	c.disconnect = true
	if !c.hungUp {
		c.hungUp = true
		if c.proto != nil {
			c.proto.Hangup()
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}
