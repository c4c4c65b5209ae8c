package events

// EventType classifies events so subscribers can format them.
type EventType int

const (
	EvText       EventType = iota // Raw text
	EvSay                         // Speech
	EvEmote                       // Emote
	EvTell                        // Private message
	EvConnect                     // Player entered the game
	EvDisconnect                  // Player left the game
	EvSystem                      // Server notice
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvSay:
		return "say"
	case EvEmote:
		return "emote"
	case EvTell:
		return "tell"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Event is one game event flowing through the bus. Player is the
// recipient key and Source the character that caused it.
type Event struct {
	Type   EventType
	Player string
	Source string
	Text   string
}
