package reactor

import (
	"errors"
	"fmt"
	"log"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

// AcceptFunc receives each accepted, already non-blocking descriptor.
// It takes ownership of fd.
type AcceptFunc func(fd int, peer netip.AddrPort)

// AcceptPause is how long a listener stops accepting after a failure
// that leaves the connection queued, such as running out of descriptors.
const AcceptPause = time.Second

// Listener is a Handler for a listening TCP socket.
type Listener struct {
	fd       int
	addr     netip.AddrPort
	onAccept AcceptFunc
	closing  bool

	accept      func(fd, flags int) (int, unix.Sockaddr, error)
	now         func() time.Time
	pausedUntil time.Time
}

// Listen opens a non-blocking TCP listener on addr ("host:port" or ":port").
func Listen(addr string, onAccept AcceptFunc) (*Listener, error) {
	ap, err := parseListenAddr(addr)
	if err != nil {
		return nil, err
	}

	family := unix.AF_INET6
	var sa unix.Sockaddr
	if ap.Addr().Is4() {
		family = unix.AF_INET
		sa = &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}
	} else {
		sa = &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("reactor: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: listen %s: %w", addr, err)
	}

	bound, err := unix.Getsockname(fd)
	if err == nil {
		ap = sockaddrToAddrPort(bound)
	}
	return &Listener{
		fd:       fd,
		addr:     ap,
		onAccept: onAccept,
		accept:   unix.Accept4,
		now:      time.Now,
	}, nil
}

func parseListenAddr(addr string) (netip.AddrPort, error) {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "[::]" + addr
	}
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("reactor: listen address %q: %w", addr, err)
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

func sockaddrToAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port))
	}
	return netip.AddrPort{}
}

// Addr returns the bound address.
func (l *Listener) Addr() netip.AddrPort { return l.addr }

// FD implements Handler.
func (l *Listener) FD() int { return l.fd }

// Flush implements Handler.
func (l *Listener) Flush() {}

// OutWaiting implements Handler.
func (l *Listener) OutWaiting() bool { return false }

// WriteReady implements Handler.
func (l *Listener) WriteReady() {}

// DisconnectWaiting implements Handler.
func (l *Listener) DisconnectWaiting() bool { return l.closing }

// Close asks the reactor to close the listener on its next cycle.
func (l *Listener) Close() { l.closing = true }

// CompleteDisconnect implements Handler.
func (l *Listener) CompleteDisconnect() {
	if l.fd != -1 {
		unix.Close(l.fd)
		l.fd = -1
	}
}

// Paused implements Pauser. A paused listener is not polled for input.
func (l *Listener) Paused() bool {
	return !l.pausedUntil.IsZero() && l.now().Before(l.pausedUntil)
}

// ReadReady accepts every pending connection.
func (l *Listener) ReadReady() {
	if l.Paused() {
		return
	}
	for {
		nfd, sa, err := l.accept(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) {
				return
			}
			l.pausedUntil = l.now().Add(AcceptPause)
			log.Printf("Accept error: %v (pausing %s)", err, AcceptPause)
			return
		}
		l.onAccept(nfd, sockaddrToAddrPort(sa))
	}
}
