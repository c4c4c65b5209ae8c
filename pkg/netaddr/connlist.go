package netaddr

import (
	"errors"
	"net/netip"
)

var (
	// ErrTooMany is returned when the server-wide client limit is reached.
	ErrTooMany = errors.New("netaddr: too many connections")
	// ErrTooManyHost is returned when a single host is at its limit.
	ErrTooManyHost = errors.New("netaddr: too many connections from host")
)

// ConnList counts open connections per host. It is owned by the reactor
// goroutine and does no locking.
type ConnList struct {
	maxClients int
	maxPerHost int
	total      int
	hosts      map[netip.Addr]int
}

// NewConnList creates a tracker. A zero limit disables that check.
func NewConnList(maxClients, maxPerHost int) *ConnList {
	return &ConnList{
		maxClients: maxClients,
		maxPerHost: maxPerHost,
		hosts:      make(map[netip.Addr]int),
	}
}

// Add records a new connection from addr, or returns ErrTooMany /
// ErrTooManyHost without recording anything. Loopback peers are exempt from
// the per-host limit.
func (c *ConnList) Add(addr netip.Addr) error {
	addr = addr.Unmap()
	if c.maxClients > 0 && c.total >= c.maxClients {
		return ErrTooMany
	}
	if c.maxPerHost > 0 && !IsLocal(addr) && c.hosts[addr] >= c.maxPerHost {
		return ErrTooManyHost
	}
	c.hosts[addr]++
	c.total++
	return nil
}

// Remove forgets one connection from addr.
func (c *ConnList) Remove(addr netip.Addr) {
	addr = addr.Unmap()
	n, ok := c.hosts[addr]
	if !ok {
		return
	}
	if n <= 1 {
		delete(c.hosts, addr)
	} else {
		c.hosts[addr] = n - 1
	}
	c.total--
}

// Total returns the number of tracked connections.
func (c *ConnList) Total() int { return c.total }

// Host returns the number of tracked connections from addr.
func (c *ConnList) Host(addr netip.Addr) int { return c.hosts[addr.Unmap()] }
