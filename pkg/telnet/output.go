package telnet

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const (
	// MaxChunk bounds the pending word buffer.
	MaxChunk = 2048
	// MaxEscape bounds an escape sequence; longer ones are dropped.
	MaxEscape = 32
	// maxColorDepth bounds the color stack.
	maxColorDepth = 16
	tabWidth      = 4
	hangIndent    = 2
)

var (
	newline = []byte("\n")
	spaces  = []byte("                ")
)

type outState int

const (
	outText outState = iota
	outEscape
	outAppCode
	outANSI
)

// Write runs p through the output formatter. It never fails.
func (e *Engine) Write(p []byte) (int, error) {
	if e.closed {
		return len(p), nil
	}
	if e.needNewline {
		e.emit(Text(newline))
		e.softBreak = false
		e.wrapped = false
		e.curCol = 0
		e.needNewline = false
	}
	for _, c := range p {
		e.put(c)
	}
	e.needPrompt = true
	return len(p), nil
}

// WriteString is Write for strings.
func (e *Engine) WriteString(s string) (int, error) {
	return e.Write([]byte(s))
}

// Printf formats through the output formatter.
func (e *Engine) Printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}

func (e *Engine) put(c byte) {
	switch e.ostate {
	case outText:
		switch c {
		case ' ':
			e.endChunk()
			if e.softBreak {
				return
			}
			if e.width > 0 && e.curCol+1 >= e.width-2 {
				e.softWrap()
				return
			}
			e.indent()
			e.emit(Data(spaces[:1]))
			e.curCol++
		case '\n':
			e.endChunk()
			if !e.softBreak {
				e.emit(Text(newline))
				e.curCol = 0
			}
			e.softBreak = false
			e.wrapped = false
		case '\r':
		case '\033':
			e.endChunk()
			e.indent()
			e.ostate = outEscape
		case '\t':
			e.endChunk()
			e.indent()
			n := tabWidth - e.curCol%tabWidth
			if e.width > 0 && e.curCol+n >= e.width-2 {
				e.softWrap()
				return
			}
			e.emit(Data(spaces[:n]))
			e.curCol += n
		default:
			e.addToChunk(c)
		}

	case outEscape:
		switch c {
		case '!':
			e.esc = e.esc[:0]
			e.ostate = outAppCode
		case '[':
			e.esc = append(e.esc[:0], '\033', '[')
			e.ostate = outANSI
		default:
			e.ostate = outText
		}

	case outAppCode:
		if c != '!' {
			if len(e.esc) >= MaxEscape-1 {
				e.esc = e.esc[:0]
				e.ostate = outText
				return
			}
			e.esc = append(e.esc, c)
			return
		}
		e.ostate = outText
		e.appCode(string(e.esc))

	case outANSI:
		if len(e.esc) >= MaxEscape {
			e.esc = e.esc[:0]
			e.ostate = outText
			return
		}
		e.esc = append(e.esc, c)
		if isAlpha(c) {
			if e.useANSI {
				e.emit(Data(e.esc))
			}
			e.ostate = outText
		}
	}
}

// appCode executes an ESC ! ... ! sequence body.
func (e *Engine) appCode(code string) {
	if code == "" {
		return
	}
	arg := code[1:]
	switch code[0] {
	case 'C':
		if e.zmpColor {
			e.SendZMP("color.use", arg)
			return
		}
		if !e.useANSI {
			return
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		switch {
		case n == 0:
			e.emit(Data([]byte(ANSINormal)))
			if len(e.colors) > 0 {
				e.colors = e.colors[:len(e.colors)-1]
			}
			if len(e.colors) > 0 {
				e.emit(Data([]byte(ANSIColors[e.colors[len(e.colors)-1]])))
			}
		case n > 0 && n < NumClasses:
			v := e.Color(n)
			if len(e.colors) >= maxColorDepth {
				e.colors[len(e.colors)-1] = v
			} else {
				e.colors = append(e.colors, v)
			}
			e.emit(Data([]byte(ANSIColors[v])))
		}
	case 'I':
		if n, err := strconv.Atoi(arg); err == nil && n >= 0 {
			e.SetIndent(n)
		}
	case 'A':
		e.autoIndent = arg == "1"
	}
}

// resetColors returns the terminal to its default attributes if any color
// is still pushed.
func (e *Engine) resetColors() {
	if len(e.colors) == 0 {
		return
	}
	if e.useANSI {
		e.emit(Data([]byte(ANSINormal)))
	}
	e.colors = e.colors[:0]
}

// SetIndent sets the left margin for following output.
func (e *Engine) SetIndent(n int) {
	e.endChunk()
	e.margin = n
}

// Indent returns the current left margin.
func (e *Engine) Indent() int { return e.margin }

// indentTarget is the column text on the current line starts at.
func (e *Engine) indentTarget() int {
	t := e.margin
	if e.wrapped && e.autoIndent {
		t += hangIndent
	}
	return e.limitIndent(t)
}

// wrapIndent is the column text starts at after a soft wrap.
func (e *Engine) wrapIndent() int {
	t := e.margin
	if e.autoIndent {
		t += hangIndent
	}
	return e.limitIndent(t)
}

func (e *Engine) limitIndent(t int) int {
	if e.width > 0 && t > e.width/2 {
		return e.width / 2
	}
	return t
}

// indent pads the current line out to the margin in batches.
func (e *Engine) indent() {
	target := e.indentTarget()
	for target-e.curCol >= len(spaces) {
		e.emit(Data(spaces))
		e.curCol += len(spaces)
	}
	if e.curCol < target {
		e.emit(Data(spaces[:target-e.curCol]))
		e.curCol = target
	}
}

// softWrap breaks the line at a word boundary.
func (e *Engine) softWrap() {
	e.emit(Text(newline))
	e.curCol = 0
	e.softBreak = true
	e.wrapped = true
}

// addToChunk appends one byte of a word. A word too wide for a fresh line
// is split at a rune boundary.
func (e *Engine) addToChunk(c byte) {
	e.indent()
	if c&0xC0 != 0x80 {
		e.runeStart = len(e.chunk)
	}
	e.chunk = append(e.chunk, c)
	if !utf8.FullRune(e.chunk[e.runeStart:]) {
		return
	}

	w := runewidth.StringWidth(string(e.chunk))
	if e.width > 0 && e.runeStart > 0 && e.wrapIndent()+w >= e.width-2 {
		tail := bytes.Clone(e.chunk[e.runeStart:])
		e.chunk = e.chunk[:e.runeStart]
		e.endChunk()
		e.chunk = append(e.chunk, tail...)
		e.chunkWidth = runewidth.StringWidth(string(tail))
		e.runeStart = 0
		return
	}
	e.chunkWidth = w
	if len(e.chunk) >= MaxChunk {
		e.endChunk()
	}
}

// endChunk writes the pending word, wrapping first if it would run past
// the right edge.
func (e *Engine) endChunk() {
	if len(e.chunk) == 0 {
		return
	}
	if e.width > 0 && e.curCol > e.indentTarget() && e.curCol+e.chunkWidth >= e.width-2 {
		e.emit(Text(newline))
		e.curCol = 0
		e.wrapped = true
		e.indent()
	}
	e.emit(Data(e.chunk))
	e.curCol += e.chunkWidth
	e.chunk = e.chunk[:0]
	e.chunkWidth = 0
	e.runeStart = 0
	e.softBreak = false
}

// ClearScreen clears the terminal, or scrolls it clear without ANSI.
func (e *Engine) ClearScreen() {
	if e.useANSI {
		e.WriteString("\033[2J\033[H")
		return
	}
	e.Write(bytes.Repeat(newline, e.height))
}

// DrawBar writes a 12 cell progress bar such as "[======      ]".
func (e *Engine) DrawBar(percent int) {
	const cells = 12
	percent = clamp(percent, 0, 100)
	parts := cells * percent / 100
	e.WriteString("[" + string(bytes.Repeat([]byte("="), parts)) +
		string(bytes.Repeat([]byte(" "), cells-parts)) + "]")
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
