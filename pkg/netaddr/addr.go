// Package netaddr holds the address helpers used by the listener: comparison
// with and without a network mask, "addr/mask" parsing, peer formatting, the
// deny list and per-host connection accounting.
package netaddr

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalid is returned by Parse for malformed "addr[/mask]" strings.
var ErrInvalid = errors.New("netaddr: invalid address")

// Compare reports whether a and b are the same host. IPv4-mapped IPv6
// addresses compare equal to their IPv4 form.
func Compare(a, b netip.Addr) bool {
	return a.Unmap() == b.Unmap()
}

// CompareMask reports whether a and b fall in the same network of the given
// prefix length. The prefix length is interpreted in a's address family.
func CompareMask(a, b netip.Addr, bits int) bool {
	a, b = a.Unmap(), b.Unmap()
	if a.Is4() != b.Is4() {
		return false
	}
	return ApplyMask(a, bits) == ApplyMask(b, bits)
}

// ApplyMask zeroes every bit of a past the first bits bits. Out of range
// lengths are clamped to the family width.
func ApplyMask(a netip.Addr, bits int) netip.Addr {
	a = a.Unmap()
	if bits < 0 {
		bits = 0
	}
	if bits > a.BitLen() {
		bits = a.BitLen()
	}
	p, err := a.Prefix(bits)
	if err != nil {
		return a
	}
	return p.Addr()
}

// IsLocal reports whether a is a loopback address.
func IsLocal(a netip.Addr) bool {
	return a.Unmap().IsLoopback()
}

// Parse reads "addr[/mask]". The mask must be plain decimal digits and may
// not exceed the family width. Without a mask the full width is used.
func Parse(s string) (netip.Addr, int, error) {
	s = strings.TrimSpace(s)
	host, maskStr, hasMask := strings.Cut(s, "/")

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	addr = addr.Unmap()
	if addr.Zone() != "" {
		return netip.Addr{}, 0, fmt.Errorf("%w: zoned address %q", ErrInvalid, s)
	}

	bits := addr.BitLen()
	if hasMask {
		if maskStr == "" || strings.TrimLeft(maskStr, "0123456789") != "" {
			return netip.Addr{}, 0, fmt.Errorf("%w: bad mask in %q", ErrInvalid, s)
		}
		n, err := strconv.Atoi(maskStr)
		if err != nil || n > addr.BitLen() {
			return netip.Addr{}, 0, fmt.Errorf("%w: mask out of range in %q", ErrInvalid, s)
		}
		bits = n
	}
	return addr, bits, nil
}

// String formats a peer as host:port, bracketing IPv6 hosts.
func String(ap netip.AddrPort) string {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()).String()
}

// Format renders an address and prefix length the way deny files store them.
func Format(a netip.Addr, bits int) string {
	return fmt.Sprintf("%s/%d", a.Unmap(), bits)
}
