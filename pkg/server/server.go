package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/sourcemud/pkg/accounts"
	"github.com/crystal-mush/sourcemud/pkg/events"
	"github.com/crystal-mush/sourcemud/pkg/netaddr"
	"github.com/crystal-mush/sourcemud/pkg/reactor"
	"github.com/crystal-mush/sourcemud/pkg/socket"
	"github.com/crystal-mush/sourcemud/pkg/telnet"
	"github.com/crystal-mush/sourcemud/pkg/zmp"
)

// DefaultBanner is shown on connect before the login prompt.
const DefaultBanner = "\n" + telnet.CTitle + "Welcome to Source MUD" + telnet.CNormal + "\n\n"

const (
	msgBanned      = "Your host or network has been banned from this server.\r\n"
	msgTooMany     = "Too many users connected.\r\n"
	msgTooManyHost = "Too many users connected from your host.\r\n"

	// shutdownCycles bounds how long Run waits for output to drain.
	shutdownCycles = 20

	// pollRetryDelay is the pause after a failed poll.
	pollRetryDelay = 250 * time.Millisecond
)

// Server is the telnet game server. Everything except the metrics
// endpoint and the deny-file watcher runs on the goroutine calling Run.
type Server struct {
	cfg      *Config
	store    *accounts.Store
	reactor  *reactor.Reactor
	registry *zmp.Registry
	deny     *netaddr.DenyList
	conns    *netaddr.ConnList
	bus      *events.Bus
	texts    *TextFiles
	metrics  *Metrics
	listener *reactor.Listener
	sessions map[*Session]struct{}
	start    time.Time
	clock    func() time.Time

	poll       func(timeoutMs int) (int, error)
	retryDelay time.Duration

	nSessions atomic.Int64
	nPlayers  atomic.Int64
}

// New builds a server from cfg. The deny file is loaded if it exists.
func New(cfg *Config, store *accounts.Store) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		reactor:  reactor.New(),
		registry: zmp.NewRegistry(),
		deny:     netaddr.NewDenyList(),
		conns:    netaddr.NewConnList(cfg.MaxClients, cfg.MaxPerHost),
		bus:      events.NewBus(),
		texts:    LoadTextFiles(cfg.TextDir),
		sessions: make(map[*Session]struct{}),
		start:    time.Now(),
		clock:    time.Now,
	}
	s.metrics = NewMetrics(s.start, s.Stats)
	s.poll = s.reactor.Poll
	s.retryDelay = pollRetryDelay

	zmp.RegisterBuiltins(s.registry)
	s.registry.Add("net.sourcemud.", s.zmpSourceMUD)

	if cfg.DenyFile != "" {
		if err := s.deny.Load(cfg.DenyFile); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}
	SetDebug(cfg.Debug)
	return s, nil
}

// Listen opens the telnet port and registers it with the reactor.
func (s *Server) Listen() error {
	ln, err := reactor.Listen(s.cfg.Addr(), s.accept)
	if err != nil {
		return err
	}
	s.listener = ln
	s.reactor.Register(ln)
	log.Printf("Listening (telnet) on %s", netaddr.String(ln.Addr()))
	return nil
}

// Addr returns the bound telnet address once Listen has run.
func (s *Server) Addr() netip.AddrPort {
	if s.listener == nil {
		return netip.AddrPort{}
	}
	return s.listener.Addr()
}

// DenyList returns the server's deny list.
func (s *Server) DenyList() *netaddr.DenyList { return s.deny }

// Metrics returns the server's metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Stats is safe to call from any goroutine.
func (s *Server) Stats() Stats {
	st := Stats{
		Sessions: int(s.nSessions.Load()),
		Players:  int(s.nPlayers.Load()),
	}
	if s.store != nil {
		st.Accounts = s.store.Count()
	}
	return st
}

// Run serves until ctx is cancelled, then disconnects every session and
// waits briefly for their output to drain. A failed poll is retried after
// a short pause.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	if s.cfg.DenyFile != "" {
		if err := netaddr.WatchDenyList(ctx, s.cfg.DenyFile, s.deny); err != nil {
			log.Printf("Deny list watcher disabled: %v", err)
		}
	}

	if s.cfg.TextDir != "" {
		if err := s.texts.Watch(ctx); err != nil {
			log.Printf("Text file watcher disabled: %v", err)
		}
	}

	if s.cfg.BackupInterval > 0 {
		go s.autoBackup(ctx)
		log.Printf("Auto-backup enabled: every %d minutes, retain %d, dir %s",
			s.cfg.BackupInterval, s.cfg.BackupRetain, s.cfg.BackupDir)
	}

	if s.cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		hs := &http.Server{Addr: ":" + strconv.Itoa(s.cfg.MetricsPort), Handler: mux}
		go func() {
			log.Printf("Metrics listening on :%d", s.cfg.MetricsPort)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
		defer hs.Close()
	}

	for ctx.Err() == nil {
		if _, err := s.poll(s.cfg.PollInterval); err != nil {
			// The reactor has logged it; wait out the cycle and keep serving.
			s.reap()
			select {
			case <-ctx.Done():
			case <-time.After(s.retryDelay):
			}
			continue
		}
		s.reap()
	}

	s.shutdown()
	return nil
}

func (s *Server) shutdown() {
	log.Printf("Shutting down: %d sessions", len(s.sessions))
	for sess := range s.sessions {
		sess.tel.WriteString("\n" + telnet.CAdmin + "The server is shutting down." + telnet.CNormal + "\n")
		sess.tel.Disconnect()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	for i := 0; i < shutdownCycles && s.reactor.Len() > 0; i++ {
		if _, err := s.reactor.Poll(50); err != nil {
			break
		}
	}
	s.reap()
}

// accept applies the connection policy to a new descriptor.
func (s *Server) accept(fd int, peer netip.AddrPort) {
	addr := peer.Addr()
	if s.deny.Exists(addr) {
		s.reject(fd, peer, "banned", textOr(s.texts.BadSite(), msgBanned))
		return
	}
	if err := s.conns.Add(addr); err != nil {
		if errors.Is(err, netaddr.ErrTooManyHost) {
			s.reject(fd, peer, "host_limit", msgTooManyHost)
		} else {
			s.reject(fd, peer, "limit", textOr(s.texts.Full(), msgTooMany))
		}
		return
	}

	conn := socket.New(fd, peer)
	tel := telnet.New(conn, telnet.Config{
		Registry:   s.registry,
		Timeout:    s.cfg.Timeout(),
		InputLimit: s.cfg.InputLimit,
		Ident:      s.cfg.MudName,
		Version:    Version,
		Clock:      s.clock,
		Status:     s.msspStatus,
	})
	conn.SetProtocol(tel)
	sess := &Session{srv: s, conn: conn, tel: tel, connected: s.clock()}
	tel.OnZMP(s.metrics.ZMP)
	tel.OnClose(func() { sess.logf("Disconnected") })

	s.sessions[sess] = struct{}{}
	s.nSessions.Add(1)
	s.metrics.Connection()
	s.reactor.Register(conn)
	sess.logf("New connection from %s", netaddr.String(peer))

	tel.Start()
	tel.ClearScreen()
	tel.WriteString(textOr(s.texts.Connect(), s.cfg.Banner))
	tel.SetMode(newLoginMode(sess))
}

// textOr returns text, or fallback when text is empty.
func textOr(text, fallback string) string {
	if text == "" {
		return fallback
	}
	return text
}

// reject queues msg on the descriptor and closes it once written. The
// message bypasses telnet, so line ends are converted here.
func (s *Server) reject(fd int, peer netip.AddrPort, reason, msg string) {
	log.Printf("Refused connection from %s: %s", netaddr.String(peer), reason)
	s.metrics.Rejected(reason)
	conn := socket.New(fd, peer)
	msg = strings.ReplaceAll(strings.ReplaceAll(msg, "\r\n", "\n"), "\n", "\r\n")
	conn.Buffer([]byte(msg))
	conn.RequestDisconnect()
	s.reactor.Register(conn)
}

// reap forgets sessions whose sockets have closed.
func (s *Server) reap() {
	for sess := range s.sessions {
		if sess.conn.FD() != -1 {
			continue
		}
		if !sess.tel.Closed() {
			sess.tel.Disconnect()
		}
		s.conns.Remove(sess.conn.Peer().Addr())
		s.metrics.Traffic(sess.conn.InBytes, sess.conn.OutBytes)
		delete(s.sessions, sess)
		s.nSessions.Add(-1)
	}
}

// Sessions returns open sessions ordered by connect time.
func (s *Server) Sessions() []*Session {
	out := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		if !sess.tel.Closed() {
			out = append(out, sess)
		}
	}
	slices.SortFunc(out, func(a, b *Session) int {
		return a.connected.Compare(b.connected)
	})
	return out
}

// playing returns the session playing character name, or nil.
func (s *Server) playing(name string) *Session {
	for sess := range s.sessions {
		if !sess.tel.Closed() && strings.EqualFold(sess.character, name) {
			return sess
		}
	}
	return nil
}

// msspStatus lists the variables MUD crawlers read over MSSP.
func (s *Server) msspStatus() map[string][]string {
	st := s.Stats()
	port := s.cfg.Port
	if ap := s.Addr(); ap.IsValid() {
		port = int(ap.Port())
	}
	return map[string][]string{
		"NAME":     {s.cfg.MudName},
		"PLAYERS":  {strconv.Itoa(st.Players)},
		"UPTIME":   {strconv.FormatInt(s.start.Unix(), 10)},
		"CODEBASE": {VersionString()},
		"PORT":     {strconv.Itoa(port)},
	}
}

// zmpSourceMUD answers the server's own net.sourcemud.* ZMP package.
func (s *Server) zmpSourceMUD(zs zmp.Session, args []string) {
	switch args[0] {
	case "net.sourcemud.who":
		reply := []string{"net.sourcemud.who"}
		for _, sess := range s.Sessions() {
			if sess.character != "" {
				reply = append(reply, sess.character)
			}
		}
		zs.SendZMP(reply...)
	case "net.sourcemud.version":
		zs.SendZMP("net.sourcemud.version", VersionString())
	}
}
