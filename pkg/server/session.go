package server

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crystal-mush/sourcemud/pkg/accounts"
	"github.com/crystal-mush/sourcemud/pkg/events"
	"github.com/crystal-mush/sourcemud/pkg/netaddr"
	"github.com/crystal-mush/sourcemud/pkg/socket"
	"github.com/crystal-mush/sourcemud/pkg/telnet"
)

// Session ties one connection to its telnet engine and login state. It is
// owned by the reactor goroutine.
type Session struct {
	srv       *Server
	conn      *socket.Conn
	tel       *telnet.Engine
	connected time.Time

	account   *accounts.Account
	character string
}

// ID returns the telnet session id.
func (s *Session) ID() string { return s.tel.ID() }

// Addr returns the peer address as text.
func (s *Session) Addr() string { return netaddr.String(s.conn.Peer()) }

// Account returns the logged-in account, or nil.
func (s *Session) Account() *accounts.Account { return s.account }

// Character returns the character in play, or "".
func (s *Session) Character() string { return s.character }

// Receive implements events.Subscriber.
func (s *Session) Receive(ev events.Event) {
	switch ev.Type {
	case events.EvSay:
		s.tel.Printf(telnet.CPlayer+"%s"+telnet.CNormal+" says, \""+telnet.CTalk+"%s"+telnet.CNormal+"\"\n", ev.Source, ev.Text)
	case events.EvEmote:
		s.tel.Printf(telnet.CPlayer+"%s"+telnet.CNormal+" %s\n", ev.Source, ev.Text)
	case events.EvTell:
		s.tel.Printf(telnet.CPlayer+"%s"+telnet.CNormal+" tells you, \""+telnet.CTalk+"%s"+telnet.CNormal+"\"\n", ev.Source, ev.Text)
	case events.EvConnect, events.EvDisconnect, events.EvSystem:
		s.tel.WriteString(telnet.CAdmin + ev.Text + telnet.CNormal + "\n")
	default:
		s.tel.WriteString(ev.Text + "\n")
	}
}

// Closed implements events.Subscriber.
func (s *Session) Closed() bool { return s.tel.Closed() }

// matches reports whether line abbreviates word, ignoring case.
func matches(word, line string) bool {
	return line != "" && strings.HasPrefix(strings.ToLower(word), strings.ToLower(line))
}

func (s *Session) logf(format string, args ...any) {
	log.Printf("[%s] %s", s.ID(), fmt.Sprintf(format, args...))
}
