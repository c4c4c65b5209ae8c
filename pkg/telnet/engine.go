package telnet

import (
	"compress/zlib"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crystal-mush/sourcemud/pkg/zmp"
)

const (
	DefaultWidth   = 80
	DefaultHeight  = 24
	DefaultTimeout = 15 * time.Minute

	// DefaultInputLimit bounds the assembled input buffer in bytes.
	DefaultInputLimit = 1024
	// MaxTypeAhead is the most complete lines accepted from one read.
	MaxTypeAhead = 3

	minWidth, maxWidth   = 20, 1000
	minHeight, maxHeight = 10, 1000
)

// Config is shared by every engine the server creates.
type Config struct {
	// Registry dispatches ZMP commands. Nil disables ZMP.
	Registry *zmp.Registry
	// Timeout is the idle limit. Zero disables it.
	Timeout time.Duration
	// InputLimit bounds the input buffer; zero means DefaultInputLimit.
	InputLimit int
	// Ident names the server in zmp.ident and the xterm title.
	Ident   string
	Version string
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Status supplies MSSP variables. Nil disables MSSP.
	Status func() map[string][]string
}

// Engine is the telnet session for one connection. It implements
// socket.Protocol on the input side and io.Writer for text headed to the
// player. It is not safe for concurrent use.
type Engine struct {
	id       string
	t        Transport
	cfg      Config
	registry *zmp.Registry
	now      func() time.Time

	parser Parser
	opts   Options
	mode   Mode

	width, height int
	termType      string
	xterm         bool
	ansiTerm      bool

	useANSI   bool
	wantEcho  bool
	doEcho    bool
	forceEcho bool
	doEOR     bool
	zmpOn     bool
	zmpColor  bool
	support   map[string]bool

	// output formatter
	needPrompt  bool
	needNewline bool
	softBreak   bool
	wrapped     bool
	autoIndent  bool
	curCol      int
	margin      int
	chunk       []byte
	chunkWidth  int
	runeStart   int
	ostate      outState
	esc         []byte
	colors      []int
	colorSet    [NumClasses]int

	// input
	input      []byte
	inputLimit int
	discarding bool
	lastInput  time.Time
	timeout    time.Duration

	zw      *zlib.Writer
	zdirty  bool // zw holds data not yet flushed
	closed  bool
	onClose func()
	onZMP   func(name string)
}

// New creates an engine writing to t. Call Start to begin negotiation.
func New(t Transport, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.InputLimit <= 0 {
		cfg.InputLimit = DefaultInputLimit
	}
	if cfg.Ident == "" {
		cfg.Ident = "Source MUD"
	}
	e := &Engine{
		id:         uuid.NewString(),
		t:          t,
		cfg:        cfg,
		registry:   cfg.Registry,
		now:        cfg.Clock,
		opts:       newOptions(),
		width:      DefaultWidth,
		height:     DefaultHeight,
		useANSI:    true,
		wantEcho:   true,
		support:    make(map[string]bool),
		inputLimit: cfg.InputLimit,
		timeout:    cfg.Timeout,
	}
	for i := range e.colorSet {
		e.colorSet[i] = -1
	}
	e.lastInput = e.now()
	return e
}

// Start advertises the options the server offers and requests.
func (e *Engine) Start() {
	for _, opt := range []byte{TeloptCompress2, TeloptEOR, TeloptZMP, TeloptMSSP} {
		if !e.offers(opt) {
			continue
		}
		e.opts.request(opt)
		e.emit(Negotiate(WILL, opt))
	}
	for _, opt := range []byte{TeloptNewEnviron, TeloptTType, TeloptNAWS} {
		e.opts.request(opt)
		e.emit(Negotiate(DO, opt))
	}
}

// ID is a unique session identifier used in logs.
func (e *Engine) ID() string { return e.id }

// Width returns the terminal width used for word-wrap.
func (e *Engine) Width() int { return e.width }

// Height returns the terminal height.
func (e *Engine) Height() int { return e.height }

// TermType returns the terminal name the client reported, if any.
func (e *Engine) TermType() string { return e.termType }

// Option returns the negotiation state of opt.
func (e *Engine) Option(opt byte) OptionState { return e.opts.State(opt) }

// UseANSI reports whether ANSI color output is on.
func (e *Engine) UseANSI() bool { return e.useANSI }

// SetANSI turns ANSI color output on or off.
func (e *Engine) SetANSI(on bool) { e.useANSI = on }

// Echoing reports whether the server is echoing typed characters.
func (e *Engine) Echoing() bool { return e.wantEcho && e.doEcho }

// HasZMP reports whether the client accepted ZMP.
func (e *Engine) HasZMP() bool { return e.zmpOn }

// Closed reports whether Disconnect has run.
func (e *Engine) Closed() bool { return e.closed }

// Compressing reports whether MCCP2 is active.
func (e *Engine) Compressing() bool { return e.zw != nil }

// LastInput returns the time input was last received.
func (e *Engine) LastInput() time.Time { return e.lastInput }

// SetTimeout changes the idle limit. Zero disables it.
func (e *Engine) SetTimeout(d time.Duration) { e.timeout = d }

// OnClose registers fn to run once when the session disconnects.
func (e *Engine) OnClose(fn func()) { e.onClose = fn }

// OnZMP registers fn to run for every dispatched ZMP command.
func (e *Engine) OnZMP(fn func(name string)) { e.onZMP = fn }

// Color returns the color value assigned to class.
func (e *Engine) Color(class int) int {
	if class < 0 || class >= NumClasses {
		return ColorNormal
	}
	if e.colorSet[class] < 0 {
		return ClassDefaults[class]
	}
	return e.colorSet[class]
}

// SetColor overrides the color value of class for this session.
func (e *Engine) SetColor(class, value int) {
	if class < 0 || class >= NumClasses || value < 0 || value >= NumColors {
		return
	}
	e.colorSet[class] = value
}

// ClearColor restores the default color of class.
func (e *Engine) ClearColor(class int) {
	if class >= 0 && class < NumClasses {
		e.colorSet[class] = -1
	}
}

// SetEcho controls whether typed characters should be visible. Off is
// used for passphrases: the server claims the echo and then withholds it.
func (e *Engine) SetEcho(on bool) {
	e.wantEcho = on
	if on {
		e.opts.disable(TeloptEcho)
		e.opts.request(TeloptEcho)
		e.emit(Negotiate(WONT, TeloptEcho))
		return
	}
	e.opts.request(TeloptEcho)
	e.emit(Negotiate(WILL, TeloptEcho))
}

// Input implements socket.Protocol.
func (e *Engine) Input(data []byte) {
	if e.closed {
		return
	}
	e.lastInput = e.now()
	for _, ev := range e.parser.Feed(data) {
		e.handle(ev)
		if e.closed {
			return
		}
	}
	e.processLines()
}

// Hangup implements socket.Protocol.
func (e *Engine) Hangup() {
	e.Disconnect()
}

// Flush implements socket.Protocol. It runs once per reactor cycle: the
// idle check, pending text, color reset and the prompt.
func (e *Engine) Flush() {
	if e.closed {
		return
	}
	e.checkTimeout()
	if e.closed {
		return
	}

	e.endChunk()
	e.resetColors()

	if e.needPrompt {
		if e.mode != nil {
			e.mode.Prompt()
		} else {
			e.WriteString(">")
		}
		e.endChunk()
		e.resetColors()
		e.emit(Data([]byte(" ")))
		if e.doEOR {
			e.emit(Command(EOR))
		}
		e.needPrompt = false
		e.needNewline = true
		e.curCol = 0
	}
	e.flushCompress()
}

// ForcePrompt redraws the prompt on the next flush.
func (e *Engine) ForcePrompt() { e.needPrompt = true }

func (e *Engine) checkTimeout() {
	if e.timeout <= 0 {
		return
	}
	if e.now().Sub(e.lastInput) < e.timeout {
		return
	}
	e.WriteString(CAdmin + "You are being disconnected for lack of activity." + CNormal + "\n")
	log.Printf("[%s] Telnet timeout (%s of no input)", e.id, e.timeout)
	e.Disconnect()
}

// SetMode replaces the current mode. The old mode is shut down first; if
// the new one fails to initialize the session is disconnected.
func (e *Engine) SetMode(m Mode) {
	if e.mode != nil {
		e.mode.Shutdown()
	}
	e.mode = m
	e.needPrompt = true
	if m == nil {
		return
	}
	if err := m.Initialize(); err != nil {
		log.Printf("[%s] mode initialize: %v", e.id, err)
		e.mode = nil
		e.Disconnect()
	}
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode { return e.mode }

// Finish asks the current mode to end the session; without a mode the
// session disconnects.
func (e *Engine) Finish() {
	if e.mode != nil {
		e.mode.Finish()
		return
	}
	e.Disconnect()
}

// Disconnect shuts the mode down, pushes out pending text and asks the
// transport to close once its queue drains. It is idempotent.
func (e *Engine) Disconnect() {
	if e.closed {
		return
	}
	if m := e.mode; m != nil {
		e.mode = nil
		m.Shutdown()
	}
	e.endChunk()
	e.resetColors()
	e.endCompress()
	e.closed = true
	e.t.RequestDisconnect()
	if e.onClose != nil {
		e.onClose()
	}
}

// emit routes one event. Decoded events update session state; EventSend
// carries encoded bytes to the wire.
func (e *Engine) emit(ev Event) {
	e.handle(ev)
}

func (e *Engine) handle(ev Event) {
	switch ev.Kind {
	case EventData:
		e.receive(ev.Data)
	case EventWill:
		e.onWill(ev.Option)
	case EventWont:
		e.onWont(ev.Option)
	case EventDo:
		e.onDo(ev.Option)
	case EventDont:
		e.onDont(ev.Option)
	case EventSubnegotiation:
		e.onSubnegotiation(ev.Option, ev.Data)
	case EventSend:
		e.send(ev.Data)
	case EventError:
		log.Printf("[%s] telnet: %v", e.id, ev.Err)
	}
}

func (e *Engine) send(data []byte) {
	if e.closed || len(data) == 0 {
		return
	}
	if e.zw != nil {
		if _, err := e.zw.Write(data); err != nil {
			log.Printf("[%s] compression write: %v", e.id, err)
		}
		e.zdirty = true
		return
	}
	e.t.Buffer(data)
}

func (e *Engine) onWill(opt byte) {
	debugf("[%s] recv WILL %s", e.id, OptionName(opt))
	if !remoteOptions[opt] {
		e.emit(Negotiate(DONT, opt))
		return
	}
	changed, answered := e.opts.enable(opt)
	if !changed {
		return
	}
	if !answered {
		e.emit(Negotiate(DO, opt))
	}
	switch opt {
	case TeloptTType:
		e.emit(Subnegotiate(TeloptTType, []byte{TTypeSend}))
	case TeloptNewEnviron:
		e.emit(Subnegotiate(TeloptNewEnviron, append([]byte{EnvSend, EnvVar}, "SYSTEMTYPE"...)))
	}
}

func (e *Engine) onWont(opt byte) {
	debugf("[%s] recv WONT %s", e.id, OptionName(opt))
	if !remoteOptions[opt] {
		return
	}
	changed, answered := e.opts.disable(opt)
	if changed && !answered {
		e.emit(Negotiate(DONT, opt))
	}
}

func (e *Engine) onDo(opt byte) {
	debugf("[%s] recv DO %s", e.id, OptionName(opt))
	if !localOptions[opt] || !e.offers(opt) {
		e.emit(Negotiate(WONT, opt))
		return
	}
	changed, answered := e.opts.enable(opt)
	if !changed {
		return
	}
	if !answered {
		e.emit(Negotiate(WILL, opt))
	}
	switch opt {
	case TeloptEcho:
		if e.wantEcho {
			e.doEcho = true
		}
	case TeloptEOR:
		e.doEOR = true
	case TeloptCompress2:
		e.beginCompress()
	case TeloptMSSP:
		e.sendMSSP()
	case TeloptZMP:
		e.zmpOn = true
		e.SendZMP("zmp.ident", e.cfg.Ident, e.cfg.Version, "Text game server")
		e.SendZMP("zmp.check", "net.sourcemud.")
		e.SendZMP("zmp.check", "color.define")
	}
}

func (e *Engine) onDont(opt byte) {
	debugf("[%s] recv DONT %s", e.id, OptionName(opt))
	if !localOptions[opt] {
		return
	}
	changed, answered := e.opts.disable(opt)
	if !changed {
		return
	}
	if !answered {
		e.emit(Negotiate(WONT, opt))
	}
	switch opt {
	case TeloptEcho:
		if !e.forceEcho {
			e.doEcho = false
		}
	case TeloptEOR:
		e.doEOR = false
	case TeloptCompress2:
		e.endCompress()
	case TeloptZMP:
		e.zmpOn = false
		e.zmpColor = false
	}
}

func (e *Engine) onSubnegotiation(opt byte, data []byte) {
	switch opt {
	case TeloptZMP:
		if !e.zmpOn || e.registry == nil {
			return
		}
		if e.registry.Dispatch(e, data) && e.onZMP != nil {
			e.onZMP(zmp.Split(data)[0])
		}
	case TeloptNAWS:
		if len(data) != 4 {
			return
		}
		w := int(data[0])<<8 | int(data[1])
		h := int(data[2])<<8 | int(data[3])
		if w > 0 {
			e.width = clamp(w, minWidth, maxWidth)
		}
		if h > 0 {
			e.height = clamp(h, minHeight, maxHeight)
		}
		debugf("[%s] NAWS %dx%d", e.id, e.width, e.height)
	case TeloptTType:
		if len(data) < 2 || data[0] != TTypeIS {
			return
		}
		e.termType = string(data[1:])
		name := strings.ToUpper(e.termType)
		switch {
		case strings.HasPrefix(name, "XTERM"):
			e.xterm = true
			e.emit(Data([]byte("\033]2;" + e.cfg.Ident + "\a")))
		case name == "ANSI":
			e.ansiTerm = true
		}
	case TeloptNewEnviron:
		vars := parseEnviron(data)
		if vars["SYSTEMTYPE"] == "WIN32" && !e.forceEcho {
			e.WriteString("\n---\n" + CAdmin + "Warning:" + CNormal + " " + e.cfg.Ident +
				" has detected that you are using the standard Windows telnet program. " +
				"Server-side echoing will be enabled. You may disable this by typing " +
				CAdmin + "!echo off" + CNormal + " at any time.\n---\n")
			e.forceEcho = true
			if e.wantEcho {
				e.doEcho = true
			}
		}
	}
}

// parseEnviron decodes an IS or INFO reply into a variable map.
func parseEnviron(data []byte) map[string]string {
	vars := make(map[string]string)
	if len(data) == 0 || (data[0] != EnvIS && data[0] != EnvInfo) {
		return vars
	}
	var name, value []byte
	inValue, have := false, false
	commit := func() {
		if have {
			vars[string(name)] = string(value)
		}
		name, value = nil, nil
		inValue, have = false, false
	}
	for i := 1; i < len(data); i++ {
		c := data[i]
		switch c {
		case EnvVar, EnvUserVar:
			commit()
			have = true
		case EnvValue:
			inValue = true
		case EnvEsc:
			if i+1 < len(data) {
				i++
				c = data[i]
			}
			fallthrough
		default:
			if !have {
				continue
			}
			if inValue {
				value = append(value, c)
			} else {
				name = append(name, c)
			}
		}
	}
	commit()
	return vars
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
