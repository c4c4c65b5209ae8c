package server

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/crystal-mush/sourcemud/pkg/events"
	"github.com/crystal-mush/sourcemud/pkg/telnet"
)

// playMode puts a character into the shared lobby. Talk is routed through
// the event bus so every session renders it with its own colors.
type playMode struct {
	sess   *Session
	name   string
	active bool
}

func newPlayMode(sess *Session, name string) *playMode {
	return &playMode{sess: sess, name: name}
}

func (m *playMode) Initialize() error {
	srv := m.sess.srv
	m.sess.character = m.name
	srv.bus.Subscribe(m.name, m.sess)
	srv.nPlayers.Add(1)
	m.active = true

	tel := m.sess.tel
	tel.ClearScreen()
	tel.WriteString("Welcome to " + telnet.CTitle + srv.cfg.MudName + telnet.CNormal + ", " + telnet.CPlayer + m.name + telnet.CNormal + "!\n\n")
	if motd := srv.texts.Motd(); motd != "" {
		tel.WriteString(motd + "\n")
	}
	tel.WriteString("Type " + telnet.CBold + "help" + telnet.CNormal + " for a list of commands.\n\n")
	srv.bus.EmitToAllExcept(m.name, events.Event{
		Type:   events.EvConnect,
		Source: m.name,
		Text:   m.name + " has connected.",
	})
	m.sess.logf("Account '%s' playing '%s'", m.sess.account.ID, m.name)
	return nil
}

func (m *playMode) Prompt() {
	m.sess.tel.WriteString(telnet.CPlayer + m.name + telnet.CNormal + ">")
}

func (m *playMode) Process(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	m.sess.srv.metrics.Command()

	var cmd, arg string
	switch line[0] {
	case '\'', '"':
		cmd, arg = "say", line[1:]
	case ':':
		cmd, arg = "emote", line[1:]
	default:
		cmd, arg, _ = strings.Cut(line, " ")
	}
	arg = strings.TrimSpace(arg)

	switch {
	case matches("say", cmd):
		m.say(arg)
	case matches("emote", cmd):
		m.emote(arg)
	case matches("tell", cmd):
		m.tell(arg)
	case matches("who", cmd):
		m.who()
	case matches("look", cmd):
		m.look()
	case matches("help", cmd):
		m.help()
	case strings.EqualFold(cmd, "quit"):
		m.sess.tel.WriteString("Goodbye.\n")
		m.sess.tel.Finish()
	default:
		m.sess.tel.WriteString("I don't understand that command.\n")
	}
}

func (m *playMode) say(text string) {
	tel := m.sess.tel
	if text == "" {
		tel.WriteString("Say what?\n")
		return
	}
	tel.WriteString("You say, \"" + telnet.CTalk + text + telnet.CNormal + "\"\n")
	m.sess.srv.bus.EmitToAllExcept(m.name, events.Event{Type: events.EvSay, Source: m.name, Text: text})
}

func (m *playMode) emote(text string) {
	if text == "" {
		m.sess.tel.WriteString("Emote what?\n")
		return
	}
	ev := events.Event{Type: events.EvEmote, Source: m.name, Text: text}
	m.sess.Receive(ev)
	m.sess.srv.bus.EmitToAllExcept(m.name, ev)
}

func (m *playMode) tell(arg string) {
	tel := m.sess.tel
	target, text, _ := strings.Cut(arg, " ")
	text = strings.TrimSpace(text)
	if target == "" || text == "" {
		tel.WriteString("Usage: tell <player> <message>\n")
		return
	}
	other := m.sess.srv.playing(target)
	if other == nil {
		tel.WriteString("No player named " + telnet.CPlayer + target + telnet.CNormal + " is connected.\n")
		return
	}
	tel.WriteString("You tell " + telnet.CPlayer + other.character + telnet.CNormal + ", \"" + telnet.CTalk + text + telnet.CNormal + "\"\n")
	m.sess.srv.bus.EmitToPlayer(other.character, events.Event{Type: events.EvTell, Source: m.name, Text: text})
}

func (m *playMode) who() {
	srv := m.sess.srv
	tel := m.sess.tel
	now := srv.clock()
	tel.WriteString(telnet.CTitle + "Players online:" + telnet.CNormal + "\n")
	n := 0
	for _, sess := range srv.Sessions() {
		if sess.character == "" {
			continue
		}
		n++
		on := strings.TrimSpace(humanize.RelTime(sess.connected, now, "", ""))
		idle := strings.TrimSpace(humanize.RelTime(sess.tel.LastInput(), now, "", ""))
		tel.Printf("  "+telnet.CPlayer+"%-15s"+telnet.CNormal+" on %s, idle %s\n", sess.character, on, idle)
	}
	tel.Printf("%d %s connected.\n", n, plural(n, "player", "players"))
	if IsDebug() {
		tel.Printf("Traffic: %s in, %s out.\n",
			humanize.Bytes(m.sess.conn.InBytes), humanize.Bytes(m.sess.conn.OutBytes))
	}
}

func (m *playMode) look() {
	tel := m.sess.tel
	tel.WriteString(telnet.CTitle + "The Lobby" + telnet.CNormal + "\n")
	tel.SetIndent(2)
	tel.WriteString(telnet.CDesc + "A quiet room where travellers gather before setting out. Voices carry easily here." + telnet.CNormal + "\n")
	tel.SetIndent(0)
	var others []string
	for _, sess := range m.sess.srv.Sessions() {
		if sess.character != "" && sess != m.sess {
			others = append(others, telnet.CPlayer+sess.character+telnet.CNormal)
		}
	}
	if len(others) > 0 {
		tel.WriteString("Also here: " + strings.Join(others, ", ") + ".\n")
	}
}

func (m *playMode) help() {
	tel := m.sess.tel
	tel.WriteString("Commands:\n")
	tel.WriteString(" say <text>         -- Speak to everyone in the lobby. Also ' or \".\n")
	tel.WriteString(" emote <action>     -- Perform an action. Also :.\n")
	tel.WriteString(" tell <who> <text>  -- Speak privately to one player.\n")
	tel.WriteString(" who                -- List connected players.\n")
	tel.WriteString(" look               -- Describe your surroundings.\n")
	tel.WriteString(" quit               -- Return to the account menu.\n")
}

func (m *playMode) Shutdown() {
	if !m.active {
		return
	}
	m.active = false
	srv := m.sess.srv
	srv.bus.Unsubscribe(m.name, m.sess)
	srv.nPlayers.Add(-1)
	srv.bus.EmitToAllExcept(m.name, events.Event{
		Type:   events.EvDisconnect,
		Source: m.name,
		Text:   m.name + " has disconnected.",
	})
	m.sess.character = ""
	m.sess.logf("Character '%s' left play", m.name)
}

func (m *playMode) Finish() {
	m.sess.tel.SetMode(newMenuMode(m.sess))
}

func (m *playMode) String() string {
	return fmt.Sprintf("play(%s)", m.name)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
