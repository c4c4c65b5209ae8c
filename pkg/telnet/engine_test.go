package telnet

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/crystal-mush/sourcemud/pkg/zmp"
)

type fakeTransport struct {
	out        bytes.Buffer
	disconnect bool
}

func (f *fakeTransport) Buffer(data []byte)      { f.out.Write(data) }
func (f *fakeTransport) RequestDisconnect()      { f.disconnect = true }
func (f *fakeTransport) DisconnectWaiting() bool { return f.disconnect }

// take returns and clears everything written so far.
func (f *fakeTransport) take() []byte {
	b := bytes.Clone(f.out.Bytes())
	f.out.Reset()
	return b
}

type recMode struct {
	lines    []string
	prompts  int
	shutdown int
	finish   int
	initErr  error
	e        *Engine
}

func (m *recMode) Initialize() error   { return m.initErr }
func (m *recMode) Prompt()             { m.prompts++; m.e.WriteString("prompt:") }
func (m *recMode) Process(line string) { m.lines = append(m.lines, line) }
func (m *recMode) Shutdown()           { m.shutdown++ }
func (m *recMode) Finish()             { m.finish++ }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeTransport, *recMode) {
	t.Helper()
	tr := &fakeTransport{}
	e := New(tr, cfg)
	m := &recMode{e: e}
	e.SetMode(m)
	return e, tr, m
}

func TestStartAdvertises(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{Registry: zmp.NewRegistry()})
	e.Start()
	want := [][]byte{
		{IAC, WILL, TeloptCompress2},
		{IAC, WILL, TeloptEOR},
		{IAC, WILL, TeloptZMP},
		{IAC, DO, TeloptNewEnviron},
		{IAC, DO, TeloptTType},
		{IAC, DO, TeloptNAWS},
	}
	if got := tr.take(); !bytes.Equal(got, bytes.Join(want, nil)) {
		t.Errorf("Start sent %v", got)
	}

	e2, tr2, _ := newTestEngine(t, Config{})
	e2.Start()
	if bytes.Contains(tr2.take(), []byte{IAC, WILL, TeloptZMP}) {
		t.Error("ZMP offered without a registry")
	}
}

func TestRefusesUnsupportedOptions(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{})
	e.Input([]byte{IAC, DO, 200})
	if got := tr.take(); !bytes.Equal(got, []byte{IAC, WONT, 200}) {
		t.Errorf("DO 200 answered with %v, want IAC WONT 200", got)
	}
	if s := e.Option(200); s != OptionUnknown {
		t.Errorf("state = %v, want unknown", s)
	}

	e.Input([]byte{IAC, WILL, 200})
	if got := tr.take(); !bytes.Equal(got, []byte{IAC, DONT, 200}) {
		t.Errorf("WILL 200 answered with %v", got)
	}

	e.Input([]byte{IAC, DO, TeloptZMP})
	if got := tr.take(); !bytes.Equal(got, []byte{IAC, WONT, TeloptZMP}) {
		t.Errorf("DO ZMP without registry answered with %v", got)
	}
}

func TestNegotiationIsIdempotent(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{})
	e.Start()
	tr.take()

	// Answer to our own DO: no reply.
	e.Input([]byte{IAC, WILL, TeloptNAWS})
	if got := tr.take(); len(got) != 0 {
		t.Errorf("answer acknowledged with %v", got)
	}
	if !e.opts.Enabled(TeloptNAWS) {
		t.Error("NAWS not enabled")
	}
	e.Input([]byte{IAC, WILL, TeloptNAWS})
	if got := tr.take(); len(got) != 0 {
		t.Errorf("repeated WILL answered with %v", got)
	}

	// Unrequested WILL TTYPE: acknowledge once and ask for the name.
	e2, tr2, _ := newTestEngine(t, Config{})
	e2.Input([]byte{IAC, WILL, TeloptTType})
	want := append([]byte{IAC, DO, TeloptTType}, Subnegotiate(TeloptTType, []byte{TTypeSend}).Data...)
	if got := tr2.take(); !bytes.Equal(got, want) {
		t.Errorf("WILL TTYPE answered with %v, want %v", got, want)
	}
	e2.Input([]byte{IAC, WILL, TeloptTType})
	if got := tr2.take(); len(got) != 0 {
		t.Errorf("second WILL TTYPE answered with %v", got)
	}

	// Peer turns it off again.
	e2.Input([]byte{IAC, WONT, TeloptTType})
	if got := tr2.take(); !bytes.Equal(got, []byte{IAC, DONT, TeloptTType}) {
		t.Errorf("WONT TTYPE answered with %v", got)
	}
	if s := e2.Option(TeloptTType); s != OptionDisabled {
		t.Errorf("state = %v, want disabled", s)
	}
}

func TestNAWS(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	tests := []struct {
		data []byte
		w, h int
	}{
		{[]byte{0, 100, 0, 50}, 100, 50},
		{[]byte{0, 5, 0, 3}, minWidth, minHeight},
		{[]byte{0, 0, 0, 0}, minWidth, minHeight},
		{[]byte{0x27, 0x10, 0, 40}, maxWidth, 40},
		{[]byte{0, 90}, maxWidth, 40},
	}
	for _, tt := range tests {
		e.Input(Subnegotiate(TeloptNAWS, tt.data).Data)
		if e.Width() != tt.w || e.Height() != tt.h {
			t.Errorf("NAWS %v: got %dx%d, want %dx%d", tt.data, e.Width(), e.Height(), tt.w, tt.h)
		}
	}
}

func TestTermType(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{Ident: "Testing"})
	e.Input(Subnegotiate(TeloptTType, append([]byte{TTypeIS}, "xterm-256color"...)).Data)
	if e.TermType() != "xterm-256color" || !e.xterm {
		t.Errorf("TermType = %q, xterm = %v", e.TermType(), e.xterm)
	}
	if got := tr.take(); !bytes.Contains(got, []byte("\033]2;Testing\a")) {
		t.Errorf("title not set: %q", got)
	}
}

func TestWindowsTelnetForcesEcho(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{})
	payload := append([]byte{EnvIS, EnvVar}, "SYSTEMTYPE"...)
	payload = append(payload, EnvValue)
	payload = append(payload, "WIN32"...)
	e.Input(Subnegotiate(TeloptNewEnviron, payload).Data)
	if !e.forceEcho || !e.Echoing() {
		t.Error("echo not forced for WIN32")
	}
	if !strings.Contains(string(tr.take()), "Warning:") {
		t.Error("warning not shown")
	}
}

func TestParseEnviron(t *testing.T) {
	data := []byte{EnvIS, EnvVar, 'A', EnvValue, 'x', EnvEsc, EnvVar, EnvUserVar, 'B', EnvVar, 'C', EnvValue}
	got := parseEnviron(data)
	if got["A"] != "x\x00" || got["B"] != "" || got["C"] != "" || len(got) != 3 {
		t.Errorf("parseEnviron = %q", got)
	}
	if len(parseEnviron([]byte{EnvSend, EnvVar, 'A'})) != 0 {
		t.Error("SEND parsed as a reply")
	}
}

func TestInputLines(t *testing.T) {
	e, _, m := newTestEngine(t, Config{})
	e.Input([]byte("look"))
	if len(m.lines) != 0 {
		t.Fatalf("partial line delivered: %q", m.lines)
	}
	e.Input([]byte(" north\r\nsay hi\n"))
	want := []string{"look north", "say hi"}
	if strings.Join(m.lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", m.lines, want)
	}
}

func TestInputBackspace(t *testing.T) {
	e, _, m := newTestEngine(t, Config{})
	e.Input([]byte("\x08loox\x7fk\n\x7fa\n"))
	want := []string{"look", "a"}
	if strings.Join(m.lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", m.lines, want)
	}

	e.Input([]byte("h\xc3\xa9\x7f\n"))
	if got := m.lines[len(m.lines)-1]; got != "h" {
		t.Errorf("multibyte erase left %q", got)
	}
}

func TestInputOverflow(t *testing.T) {
	e, tr, m := newTestEngine(t, Config{InputLimit: 16})
	e.Input([]byte(strings.Repeat("a", 40) + "\n"))
	if len(m.lines) != 1 || m.lines[0] != strings.Repeat("a", 15) {
		t.Fatalf("lines = %q", m.lines)
	}
	if n := strings.Count(string(tr.take()), "Input has exceeded maximum size."); n != 1 {
		t.Errorf("warning shown %d times, want 1", n)
	}

	e.Input([]byte("look\n"))
	if len(m.lines) != 2 || m.lines[1] != "look" {
		t.Errorf("after overflow lines = %q", m.lines)
	}
}

func TestInputOverflowAcrossReads(t *testing.T) {
	e, tr, m := newTestEngine(t, Config{InputLimit: 8})
	e.Input([]byte("abcdefghij"))
	e.Input([]byte("klmnop"))
	e.Input([]byte("q\nnext\n"))
	want := []string{"abcdefg", "next"}
	if strings.Join(m.lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", m.lines, want)
	}
	if n := strings.Count(string(tr.take()), "Input has exceeded maximum size."); n != 1 {
		t.Errorf("warning shown %d times, want 1", n)
	}
}

func TestTypeAheadLimit(t *testing.T) {
	e, tr, m := newTestEngine(t, Config{})
	e.Input([]byte("a\nb\nc\nd\ne\n"))
	want := []string{"a", "b", "c"}
	if strings.Join(m.lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", m.lines, want)
	}
	if !strings.Contains(string(tr.take()), "You only have 3 type-ahead lines.") {
		t.Error("type-ahead warning missing")
	}
}

func TestServerEcho(t *testing.T) {
	e, tr, m := newTestEngine(t, Config{})
	e.Input([]byte{IAC, DO, TeloptEcho})
	tr.take()
	e.Input([]byte("hi\x7f\n"))
	if got := string(tr.take()); got != "hi\b \b\r\n" {
		t.Errorf("echo = %q", got)
	}
	if len(m.lines) != 1 || m.lines[0] != "h" {
		t.Errorf("lines = %q", m.lines)
	}

	// Passphrase entry keeps the echo claimed but silent.
	e.SetEcho(false)
	tr.take()
	e.Input([]byte("secret\n"))
	if got := string(tr.take()); strings.Contains(got, "secret") {
		t.Errorf("passphrase echoed: %q", got)
	}
}

func TestIdleTimeout(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC)}
	e, tr, m := newTestEngine(t, Config{Timeout: time.Minute, Clock: clock.now})

	clock.t = clock.t.Add(59 * time.Second)
	e.Flush()
	if e.Closed() {
		t.Fatal("disconnected before the limit")
	}

	e.Input([]byte("x"))
	clock.t = clock.t.Add(59 * time.Second)
	e.Flush()
	if e.Closed() {
		t.Fatal("input did not reset the idle timer")
	}

	clock.t = clock.t.Add(time.Second)
	e.Flush()
	if !e.Closed() || !tr.disconnect {
		t.Fatal("not disconnected at the limit")
	}
	if !strings.Contains(string(tr.take()), "lack of activity") {
		t.Error("timeout message missing")
	}
	if m.shutdown != 1 {
		t.Errorf("mode shutdown %d times, want 1", m.shutdown)
	}

	e.SetTimeout(0)
	e.Disconnect()
	if m.shutdown != 1 {
		t.Error("Disconnect is not idempotent")
	}
}

func TestFlushPrompt(t *testing.T) {
	e, tr, m := newTestEngine(t, Config{})
	e.Input([]byte{IAC, DO, TeloptEOR})
	tr.take()
	e.Flush()
	if got := tr.take(); !bytes.Equal(got, append([]byte("prompt: "), IAC, EOR)) {
		t.Errorf("prompt = %q", got)
	}
	if m.prompts != 1 {
		t.Errorf("prompts = %d", m.prompts)
	}
	e.Flush()
	if got := tr.take(); len(got) != 0 {
		t.Errorf("idle flush wrote %q", got)
	}

	// Output after a prompt starts on a fresh line.
	e.WriteString("hello\n")
	if got := string(tr.take()); got != "\r\nhello\r\n" {
		t.Errorf("output after prompt = %q", got)
	}
}

func TestSetModeInitializeFailure(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{})
	e.SetMode(&recMode{e: e, initErr: errors.New("no")})
	if !e.Closed() || !tr.disconnect {
		t.Error("failed Initialize did not disconnect")
	}
}

func TestFinish(t *testing.T) {
	e, _, m := newTestEngine(t, Config{})
	e.Finish()
	if m.finish != 1 || e.Closed() {
		t.Errorf("Finish with a mode: finish=%d closed=%v", m.finish, e.Closed())
	}
	e.SetMode(nil)
	e.Finish()
	if !e.Closed() {
		t.Error("Finish without a mode should disconnect")
	}
}

func TestMetaCommands(t *testing.T) {
	e, tr, m := newTestEngine(t, Config{})

	e.Input([]byte("!screen 100 40\n"))
	if e.Width() != 100 || e.Height() != 40 {
		t.Errorf("screen = %dx%d", e.Width(), e.Height())
	}
	if !strings.Contains(string(tr.take()), "Screen: 100x40") {
		t.Error("screen reply missing")
	}

	e.Input([]byte("!screen 5 5\n"))
	if e.Width() != 100 {
		t.Error("too small screen accepted")
	}
	if !strings.Contains(string(tr.take()), "!help") {
		t.Error("bad arguments should show help")
	}

	e.Input([]byte("!color off\n"))
	if e.UseANSI() {
		t.Error("color still on")
	}
	if !strings.Contains(string(tr.take()), "ANSI Color Disabled") {
		t.Error("color reply missing")
	}

	e.Input([]byte("!echo on\n"))
	if !e.forceEcho {
		t.Error("echo not forced")
	}
	tr.take()
	e.Input([]byte("!echo off\n"))
	if e.forceEcho || e.Echoing() {
		t.Error("echo still forced")
	}
	if !bytes.Contains(tr.take(), []byte{IAC, WONT, TeloptEcho}) {
		t.Error("WONT ECHO not sent")
	}

	if len(m.lines) != 0 {
		t.Errorf("meta-commands reached the mode: %q", m.lines)
	}
}

func TestZMPSession(t *testing.T) {
	reg := zmp.NewRegistry()
	zmp.RegisterBuiltins(reg)
	e, tr, m := newTestEngine(t, Config{Registry: reg, Ident: "Testing", Version: "1.0"})

	var seen []string
	e.OnZMP(func(name string) { seen = append(seen, name) })

	e.Input([]byte{IAC, DO, TeloptZMP})
	if !e.HasZMP() {
		t.Fatal("ZMP not enabled")
	}
	ident, _ := zmp.Pack("zmp.ident", "Testing", "1.0", "Text game server")
	got := tr.take()
	if !bytes.HasPrefix(got, []byte{IAC, WILL, TeloptZMP}) {
		t.Errorf("DO ZMP answered with %v", got[:3])
	}
	if !bytes.Contains(got, Subnegotiate(TeloptZMP, ident).Data) {
		t.Error("zmp.ident not sent")
	}

	in, _ := zmp.Pack("zmp.input", "say hi")
	e.Input(Subnegotiate(TeloptZMP, in).Data)
	if len(m.lines) != 1 || m.lines[0] != "say hi" {
		t.Errorf("zmp.input delivered %q", m.lines)
	}
	if len(seen) != 1 || seen[0] != "zmp.input" {
		t.Errorf("OnZMP saw %q", seen)
	}

	sup, _ := zmp.Pack("zmp.support", "color.define")
	e.Input(Subnegotiate(TeloptZMP, sup).Data)
	if !e.Supports("color.define") {
		t.Fatal("support not recorded")
	}
	def, _ := zmp.Pack("color.define", "1", ClassNames[1], ClassRGB[1])
	if !bytes.Contains(tr.take(), Subnegotiate(TeloptZMP, def).Data) {
		t.Error("palette not pushed")
	}

	e.WriteString(CAdmin + "x")
	use, _ := zmp.Pack("color.use", "7")
	got = tr.take()
	if !bytes.Contains(got, Subnegotiate(TeloptZMP, use).Data) {
		t.Errorf("color.use not sent: %q", got)
	}
	if bytes.Contains(got, []byte("\033[")) {
		t.Error("ANSI sent while ZMP colors active")
	}
}

func TestCompression(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{})
	e.Start()
	tr.take()

	e.Input([]byte{IAC, DO, TeloptCompress2})
	if !e.Compressing() {
		t.Fatal("compression not started")
	}
	e.WriteString("hello\n")
	e.Flush()
	e.Disconnect()

	raw := tr.take()
	start := Subnegotiate(TeloptCompress2, nil).Data
	if !bytes.HasPrefix(raw, start) {
		t.Fatalf("stream does not begin with MCCP2 start: %v", raw[:5])
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw[len(start):]))
	if err != nil {
		t.Fatalf("zlib: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !strings.Contains(string(plain), "hello\r\n") {
		t.Errorf("inflated %q", plain)
	}
	if e.Compressing() {
		t.Error("compression still active after disconnect")
	}
}

func TestCompressionIdleFlush(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{})
	e.Start()
	e.Input([]byte{IAC, DO, TeloptCompress2})
	e.WriteString("hello\n")
	e.Flush()
	if len(tr.take()) == 0 {
		t.Fatal("no output before idle flushes")
	}

	for i := 0; i < 3; i++ {
		e.Flush()
		if got := tr.take(); len(got) != 0 {
			t.Fatalf("idle flush %d queued %q", i, got)
		}
	}

	e.WriteString("again\n")
	e.Flush()
	if len(tr.take()) == 0 {
		t.Error("new output was not flushed")
	}
}

func TestOutputDroppedAfterDisconnect(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{})
	e.Disconnect()
	tr.take()
	e.WriteString("late")
	e.Flush()
	if got := tr.take(); len(got) != 0 {
		t.Errorf("wrote %q after disconnect", got)
	}
}

func TestMSSP(t *testing.T) {
	e, tr, _ := newTestEngine(t, Config{})
	e.Start()
	if bytes.Contains(tr.take(), []byte{IAC, WILL, TeloptMSSP}) {
		t.Error("MSSP offered without a status source")
	}
	e.Input([]byte{IAC, DO, TeloptMSSP})
	if got := tr.take(); !bytes.Equal(got, []byte{IAC, WONT, TeloptMSSP}) {
		t.Errorf("unconfigured DO MSSP answered %v", got)
	}

	e, tr, _ = newTestEngine(t, Config{Status: func() map[string][]string {
		return map[string][]string{
			"PLAYERS": {"2"},
			"NAME":    {"Test\x01MUD"},
			"PORT":    {"4000", "4001"},
		}
	}})
	e.Start()
	if !bytes.Contains(tr.take(), []byte{IAC, WILL, TeloptMSSP}) {
		t.Fatal("MSSP not offered")
	}
	e.Input([]byte{IAC, DO, TeloptMSSP})
	want := []byte{IAC, SB, TeloptMSSP}
	want = append(want, "\x01NAME\x02TestMUD\x01PLAYERS\x022\x01PORT\x024000\x024001"...)
	want = append(want, IAC, SE)
	if got := tr.take(); !bytes.Equal(got, want) {
		t.Errorf("MSSP sent %q, want %q", got, want)
	}
}
