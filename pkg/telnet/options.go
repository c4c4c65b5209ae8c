package telnet

// OptionState is the negotiated state of one telnet option.
type OptionState int

const (
	OptionUnknown OptionState = iota
	OptionEnabled
	OptionDisabled
)

func (s OptionState) String() string {
	switch s {
	case OptionEnabled:
		return "enabled"
	case OptionDisabled:
		return "disabled"
	}
	return "unknown"
}

// Options tracks negotiation per option along with which requests we have
// sent and not yet seen answered. Answers to our own requests are not
// acknowledged again, which keeps negotiation from looping.
type Options struct {
	state     map[byte]OptionState
	requested map[byte]bool
}

func newOptions() Options {
	return Options{
		state:     make(map[byte]OptionState),
		requested: make(map[byte]bool),
	}
}

// State returns the current state of opt.
func (o *Options) State(opt byte) OptionState { return o.state[opt] }

// Enabled reports whether opt has been agreed.
func (o *Options) Enabled(opt byte) bool { return o.state[opt] == OptionEnabled }

// request records that we sent WILL/DO for opt.
func (o *Options) request(opt byte) { o.requested[opt] = true }

// enable moves opt to enabled. It reports whether the state changed and
// whether the peer's message was an answer to our own request.
func (o *Options) enable(opt byte) (changed, answered bool) {
	answered = o.requested[opt]
	delete(o.requested, opt)
	if o.state[opt] == OptionEnabled {
		return false, answered
	}
	o.state[opt] = OptionEnabled
	return true, answered
}

// disable moves opt to disabled with the same reporting as enable.
func (o *Options) disable(opt byte) (changed, answered bool) {
	answered = o.requested[opt]
	delete(o.requested, opt)
	if o.state[opt] == OptionDisabled {
		return false, answered
	}
	o.state[opt] = OptionDisabled
	return true, answered
}

// localOptions are options the server performs (peer sends DO/DONT).
var localOptions = map[byte]bool{
	TeloptEcho:      true,
	TeloptEOR:       true,
	TeloptMSSP:      true,
	TeloptCompress2: true,
	TeloptZMP:       true,
}

// remoteOptions are options the peer performs (peer sends WILL/WONT).
var remoteOptions = map[byte]bool{
	TeloptNAWS:       true,
	TeloptTType:      true,
	TeloptNewEnviron: true,
}
