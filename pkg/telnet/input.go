package telnet

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// receive assembles decoded application bytes into the input buffer.
// Only printable bytes and newlines are kept; DEL and BS erase within the
// current line. The buffer never exceeds the input limit.
func (e *Engine) receive(data []byte) {
	for _, c := range data {
		switch {
		case c == '\n':
			if e.discarding {
				e.discarding = false
				continue
			}
			e.input = append(e.input, '\n')
			e.lineDone()

		case c == 127 || c == 8:
			if e.discarding {
				continue
			}
			n := len(e.input)
			if n == 0 || e.input[n-1] == '\n' {
				continue
			}
			_, size := utf8.DecodeLastRune(e.input)
			e.input = e.input[:n-size]
			if e.doEcho {
				e.emit(Data([]byte("\b \b")))
			}

		case c >= 0x20:
			if e.discarding {
				continue
			}
			if len(e.input)+1 >= e.inputLimit {
				e.overflow()
				continue
			}
			e.input = append(e.input, c)
			if e.wantEcho && e.doEcho {
				e.emit(Data([]byte{c}))
			}
		}
	}
}

// overflow ends the current line at the limit with a warning. Bytes up to
// the next newline are discarded rather than read as a new command.
func (e *Engine) overflow() {
	e.WriteString(CAdmin + "\nInput has exceeded maximum size." + CNormal + "\n")
	e.input = append(e.input, '\n')
	e.discarding = true
	e.lineDone()
}

func (e *Engine) lineDone() {
	if e.doEcho {
		e.emit(Text(newline))
	}
	e.needNewline = false
	e.needPrompt = true
}

// processLines hands every complete line to the mode. More than
// MaxTypeAhead lines from a single read are cut with a warning.
func (e *Engine) processLines() {
	if bytes.Count(e.input, newline) > MaxTypeAhead {
		cut := 0
		for i := 0; i < MaxTypeAhead; i++ {
			cut += bytes.IndexByte(e.input[cut:], '\n') + 1
		}
		e.input = e.input[:cut]
		e.Printf(CAdmin+"You only have %d type-ahead lines."+CNormal+"\n", MaxTypeAhead)
	}

	for !e.closed {
		i := bytes.IndexByte(e.input, '\n')
		if i < 0 {
			return
		}
		line := string(e.input[:i])
		e.input = append(e.input[:0], e.input[i+1:]...)
		e.processCommand(line)
	}
}

// processCommand dispatches one line: "!" lines are engine commands,
// everything else goes to the mode.
func (e *Engine) processCommand(line string) {
	e.needPrompt = true
	if strings.HasPrefix(line, "!") {
		e.metaCommand(line[1:])
		return
	}
	if e.mode != nil {
		e.mode.Process(line)
	}
}

// Inject processes line as though the player had typed it.
func (e *Engine) Inject(line string) {
	if e.closed {
		return
	}
	e.processCommand(line)
}

func (e *Engine) metaCommand(cmd string) {
	args := strings.Fields(cmd)
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "color", "colour":
			if len(args) == 2 {
				switch args[1] {
				case "on":
					e.useANSI = true
					e.WriteString(CAdmin + "ANSI Color Enabled" + CNormal + "\n")
					return
				case "off":
					e.useANSI = false
					e.WriteString("ANSI Color Disabled\n")
					return
				}
			}
		case "screen":
			if len(args) == 3 {
				w, errW := strconv.Atoi(args[1])
				h, errH := strconv.Atoi(args[2])
				if errW == nil && errH == nil && w >= minWidth && h >= minHeight {
					e.width = min(w, maxWidth)
					e.height = min(h, maxHeight)
					e.WriteString(fmt.Sprintf(CAdmin+"Screen: %dx%d"+CNormal+"\n", e.width, e.height))
					return
				}
			}
		case "echo":
			if len(args) == 2 {
				switch args[1] {
				case "on":
					e.forceEcho = true
					if e.wantEcho {
						e.doEcho = true
					}
					e.WriteString(CAdmin + "Echo Enabled" + CNormal + "\n")
					return
				case "off":
					e.forceEcho = false
					if e.wantEcho {
						e.opts.disable(TeloptEcho)
						e.opts.request(TeloptEcho)
						e.doEcho = false
						e.emit(Negotiate(WONT, TeloptEcho))
					}
					e.WriteString(CAdmin + "Echo Disabled" + CNormal + "\n")
					return
				}
			}
		}
	}

	e.WriteString("Telnet commands:\n")
	e.WriteString(" !color <on|off> -- Enable or disable ANSI color.\n")
	e.WriteString(" !screen <w> <h> -- Set the width and height of your display.\n")
	e.WriteString(" !echo <on|off>  -- Enable or disable forced server echoing.\n")
	e.WriteString(" !help           -- Show this message.\n")
}
