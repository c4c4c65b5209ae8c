package reactor

import (
	"net"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type fakeHandler struct {
	fd         int
	peer       int
	out        bool
	disconnect bool

	flushes   int
	reads     int
	writes    int
	completed int
}

func (f *fakeHandler) FD() int                 { return f.fd }
func (f *fakeHandler) Flush()                  { f.flushes++ }
func (f *fakeHandler) OutWaiting() bool        { return f.out }
func (f *fakeHandler) DisconnectWaiting() bool { return f.disconnect }

func (f *fakeHandler) ReadReady() {
	f.reads++
	buf := make([]byte, 64)
	unix.Read(f.fd, buf)
}

func (f *fakeHandler) WriteReady() {
	f.writes++
	f.out = false
}

func (f *fakeHandler) CompleteDisconnect() {
	f.completed++
	unix.Close(f.fd)
	f.fd = -1
}

func newFakeHandler(t *testing.T) *fakeHandler {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[1])
	})
	return &fakeHandler{fd: fds[0], peer: fds[1]}
}

func TestPollDropsClosedHandlers(t *testing.T) {
	const n, m = 6, 2

	r := New()
	handlers := make([]*fakeHandler, n)
	for i := range handlers {
		handlers[i] = newFakeHandler(t)
		r.Register(handlers[i])
	}
	for i := 0; i < m; i++ {
		unix.Close(handlers[i].fd)
		handlers[i].fd = -1
	}

	if _, err := r.Poll(0); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if r.Len() != n-m {
		t.Errorf("Len() = %d, want %d", r.Len(), n-m)
	}
	for i := m; i < n; i++ {
		unix.Close(handlers[i].fd)
	}
}

func TestPollRegisterIsDeferred(t *testing.T) {
	r := New()
	h := newFakeHandler(t)
	r.Register(h)
	if r.Len() != 0 {
		t.Errorf("Len() before Poll = %d, want 0", r.Len())
	}
	r.Poll(0)
	if r.Len() != 1 {
		t.Errorf("Len() after Poll = %d, want 1", r.Len())
	}
	if h.flushes != 1 {
		t.Errorf("flushes = %d, want 1", h.flushes)
	}
}

func TestPollDispatch(t *testing.T) {
	r := New()
	h := newFakeHandler(t)
	r.Register(h)

	if _, err := unix.Write(h.peer, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	h.out = true

	n, err := r.Poll(1000)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 {
		t.Errorf("Poll() = %d, want 1", n)
	}
	if h.reads != 1 || h.writes != 1 {
		t.Errorf("reads=%d writes=%d, want 1 and 1", h.reads, h.writes)
	}

	// Nothing readable and nothing to write: poll times out.
	n, err = r.Poll(0)
	if err != nil || n != 0 {
		t.Errorf("idle Poll() = %d, %v; want 0, nil", n, err)
	}
}

func TestPollDrainsBeforeClose(t *testing.T) {
	r := New()
	h := newFakeHandler(t)
	r.Register(h)
	h.disconnect = true
	h.out = true

	r.Poll(0)
	if h.completed != 0 {
		t.Fatal("handler closed while output was still waiting")
	}
	if h.flushes != 0 {
		t.Error("disconnecting handler should not be flushed")
	}
	if h.writes != 1 {
		t.Fatalf("writes = %d, want 1", h.writes)
	}

	r.Poll(0)
	if h.completed != 1 {
		t.Errorf("completed = %d, want 1", h.completed)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestListenerAccepts(t *testing.T) {
	r := New()
	accepted := make(chan netip.AddrPort, 1)
	ln, err := Listen("127.0.0.1:0", func(fd int, peer netip.AddrPort) {
		unix.Close(fd)
		accepted <- peer
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	r.Register(ln)

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(int(ln.Addr().Port())))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for len(accepted) == 0 && time.Now().Before(deadline) {
		if _, err := r.Poll(100); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}
	select {
	case peer := <-accepted:
		if !peer.Addr().IsLoopback() {
			t.Errorf("peer = %v, want loopback", peer)
		}
	default:
		t.Fatal("connection was not accepted")
	}

	ln.Close()
	r.Poll(0)
	if ln.FD() != -1 || r.Len() != 0 {
		t.Errorf("listener not closed: fd=%d len=%d", ln.FD(), r.Len())
	}
}

func TestListenerPausesAfterAcceptFailure(t *testing.T) {
	r := New()
	accepted := 0
	ln, err := Listen("127.0.0.1:0", func(fd int, peer netip.AddrPort) {
		unix.Close(fd)
		accepted++
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.CompleteDisconnect()
	now := time.Now()
	ln.now = func() time.Time { return now }
	failures := 0
	ln.accept = func(int, int) (int, unix.Sockaddr, error) {
		failures++
		return -1, nil, unix.EMFILE
	}
	r.Register(ln)

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(int(ln.Addr().Port())))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for failures == 0 && time.Now().Before(deadline) {
		r.Poll(100)
	}
	if failures != 1 || !ln.Paused() {
		t.Fatalf("failures=%d paused=%v, want 1 and true", failures, ln.Paused())
	}

	// The connection is still queued, but a paused listener is not woken.
	n, err := r.Poll(50)
	if err != nil || n != 0 {
		t.Errorf("paused Poll() = %d, %v; want 0, nil", n, err)
	}
	if failures != 1 {
		t.Errorf("accept retried while paused: failures=%d", failures)
	}

	now = now.Add(AcceptPause)
	ln.accept = unix.Accept4
	r.Poll(1000)
	if accepted != 1 {
		t.Errorf("accepted = %d after pause, want 1", accepted)
	}
}
