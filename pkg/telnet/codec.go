package telnet

import (
	"bytes"
	"errors"
	"fmt"
)

// MaxSubnegotiation bounds a single subnegotiation payload.
const MaxSubnegotiation = 4096

// ErrProtocol marks malformed telnet sequences reported through EventError.
var ErrProtocol = errors.New("telnet: protocol error")

// EventKind tags an Event.
type EventKind int

const (
	EventData           EventKind = iota // application bytes, IAC already unescaped
	EventWill                            // peer offers an option
	EventWont                            // peer refuses or disables an option
	EventDo                              // peer asks us to enable an option
	EventDont                            // peer asks us to disable an option
	EventSubnegotiation                  // complete SB payload for Option
	EventSend                            // encoded bytes ready for the wire
	EventError                           // malformed input; Err explains
)

var eventKindNames = [...]string{
	EventData:           "data",
	EventWill:           "will",
	EventWont:           "wont",
	EventDo:             "do",
	EventDont:           "dont",
	EventSubnegotiation: "subnegotiation",
	EventSend:           "send",
	EventError:          "error",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one decoded protocol element or one encoded chunk of output.
type Event struct {
	Kind   EventKind
	Option byte
	Data   []byte
	Err    error
}

type parserState int

const (
	stData parserState = iota
	stIAC
	stWill
	stWont
	stDo
	stDont
	stSB
	stSBData
	stSBIAC
)

// Parser decodes an inbound telnet byte stream. State carries across Feed
// calls, so sequences may be split between reads.
type Parser struct {
	state    parserState
	opt      byte
	sb       []byte
	overflow bool
}

// Feed decodes in and returns the resulting events in stream order.
// Returned slices are owned by the caller.
func (p *Parser) Feed(in []byte) []Event {
	var evs []Event
	var data []byte
	flush := func() {
		if len(data) > 0 {
			evs = append(evs, Event{Kind: EventData, Data: data})
			data = nil
		}
	}

	for i := 0; i < len(in); i++ {
		c := in[i]
		switch p.state {
		case stData:
			if c == IAC {
				p.state = stIAC
			} else {
				data = append(data, c)
			}

		case stIAC:
			p.state = stData
			switch c {
			case IAC:
				data = append(data, IAC)
			case WILL:
				p.state = stWill
			case WONT:
				p.state = stWont
			case DO:
				p.state = stDo
			case DONT:
				p.state = stDont
			case SB:
				p.state = stSB
			default:
				// NOP, GA, EOR and the editing commands carry nothing we use.
			}

		case stWill, stWont, stDo, stDont:
			flush()
			evs = append(evs, Event{Kind: negotiationKind(p.state), Option: c})
			p.state = stData

		case stSB:
			p.opt = c
			p.sb = p.sb[:0]
			p.overflow = false
			p.state = stSBData

		case stSBData:
			if c == IAC {
				p.state = stSBIAC
			} else {
				p.appendSub(c)
			}

		case stSBIAC:
			switch c {
			case SE:
				flush()
				evs = append(evs, p.endSub())
				p.state = stData
			case IAC:
				p.appendSub(IAC)
				p.state = stSBData
			default:
				flush()
				evs = append(evs, Event{
					Kind:   EventError,
					Option: p.opt,
					Err:    fmt.Errorf("%w: IAC %d inside %s subnegotiation", ErrProtocol, c, OptionName(p.opt)),
				})
				p.sb = p.sb[:0]
				// The byte after IAC is a command in its own right.
				p.state = stIAC
				i--
			}
		}
	}
	flush()
	return evs
}

func negotiationKind(s parserState) EventKind {
	switch s {
	case stWill:
		return EventWill
	case stWont:
		return EventWont
	case stDo:
		return EventDo
	}
	return EventDont
}

func (p *Parser) appendSub(c byte) {
	if len(p.sb) >= MaxSubnegotiation {
		p.overflow = true
		return
	}
	p.sb = append(p.sb, c)
}

func (p *Parser) endSub() Event {
	if p.overflow {
		return Event{
			Kind:   EventError,
			Option: p.opt,
			Err:    fmt.Errorf("%w: %s subnegotiation exceeds %d bytes", ErrProtocol, OptionName(p.opt), MaxSubnegotiation),
		}
	}
	return Event{
		Kind:   EventSubnegotiation,
		Option: p.opt,
		Data:   bytes.Clone(p.sb),
	}
}

// EscapeIAC doubles every IAC byte in b.
func EscapeIAC(b []byte) []byte {
	n := bytes.Count(b, []byte{IAC})
	if n == 0 {
		return b
	}
	out := make([]byte, 0, len(b)+n)
	for _, c := range b {
		out = append(out, c)
		if c == IAC {
			out = append(out, IAC)
		}
	}
	return out
}

// Data encodes raw application bytes.
func Data(b []byte) Event {
	return Event{Kind: EventSend, Data: EscapeIAC(b)}
}

// Text encodes terminal text, turning each "\n" into "\r\n".
func Text(b []byte) Event {
	if bytes.IndexByte(b, '\n') < 0 {
		return Data(b)
	}
	out := make([]byte, 0, len(b)+8)
	for _, c := range b {
		switch c {
		case '\n':
			out = append(out, '\r', '\n')
		case IAC:
			out = append(out, IAC, IAC)
		default:
			out = append(out, c)
		}
	}
	return Event{Kind: EventSend, Data: out}
}

// Negotiate encodes IAC cmd opt.
func Negotiate(cmd, opt byte) Event {
	return Event{Kind: EventSend, Data: []byte{IAC, cmd, opt}}
}

// Command encodes a two byte command such as IAC EOR.
func Command(cmd byte) Event {
	return Event{Kind: EventSend, Data: []byte{IAC, cmd}}
}

// Subnegotiate encodes IAC SB opt payload IAC SE with payload escaped.
func Subnegotiate(opt byte, payload []byte) Event {
	esc := EscapeIAC(payload)
	out := make([]byte, 0, len(esc)+5)
	out = append(out, IAC, SB, opt)
	out = append(out, esc...)
	out = append(out, IAC, SE)
	return Event{Kind: EventSend, Data: out}
}
