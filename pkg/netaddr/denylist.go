package netaddr

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"os"
	"strings"
	"sync"
)

// ErrExists is returned by DenyList.Add when the entry is already listed.
var ErrExists = errors.New("netaddr: entry already listed")

// ErrNotListed is returned by DenyList.Remove for unknown entries.
var ErrNotListed = errors.New("netaddr: entry not listed")

type denyEntry struct {
	addr netip.Addr
	bits int
}

// DenyList is a set of banned networks. It is safe for concurrent use so a
// file watcher can reload it while the reactor goroutine queries it.
type DenyList struct {
	mu      sync.RWMutex
	entries []denyEntry
}

// NewDenyList returns an empty deny list.
func NewDenyList() *DenyList {
	return &DenyList{}
}

// Load replaces the list with the contents of path. A missing file leaves
// an empty list and is not an error. Invalid lines are logged and skipped.
func (d *DenyList) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.mu.Lock()
			d.entries = nil
			d.mu.Unlock()
			return nil
		}
		return fmt.Errorf("netaddr: open %s: %w", path, err)
	}
	defer f.Close()

	var entries []denyEntry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		addr, bits, err := Parse(line)
		if err != nil {
			log.Printf("WARNING: %s:%d: invalid deny entry %q", path, lineNo, line)
			continue
		}
		entries = append(entries, denyEntry{addr: addr, bits: bits})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("netaddr: reading %s: %w", path, err)
	}

	d.mu.Lock()
	d.entries = entries
	d.mu.Unlock()
	return nil
}

// Save writes the list to path, one addr/mask per line.
func (d *DenyList) Save(path string) error {
	d.mu.RLock()
	var b strings.Builder
	b.WriteString("# Banned hosts and networks, one addr/mask per line\n")
	for _, e := range d.entries {
		b.WriteString(Format(e.addr, e.bits))
		b.WriteByte('\n')
	}
	d.mu.RUnlock()

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("netaddr: writing %s: %w", path, err)
	}
	return nil
}

// Add parses "addr[/mask]" and appends it to the list.
func (d *DenyList) Add(s string) error {
	addr, bits, err := Parse(s)
	if err != nil {
		return err
	}
	addr = ApplyMask(addr, bits)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.bits == bits && Compare(e.addr, addr) {
			return fmt.Errorf("%w: %s", ErrExists, Format(addr, bits))
		}
	}
	d.entries = append(d.entries, denyEntry{addr: addr, bits: bits})
	return nil
}

// Remove deletes an exact "addr[/mask]" entry.
func (d *DenyList) Remove(s string) error {
	addr, bits, err := Parse(s)
	if err != nil {
		return err
	}
	addr = ApplyMask(addr, bits)

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.bits == bits && Compare(e.addr, addr) {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotListed, Format(addr, bits))
}

// Exists reports whether addr falls inside any listed network.
func (d *DenyList) Exists(addr netip.Addr) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.entries {
		if CompareMask(e.addr, addr, e.bits) {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (d *DenyList) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
