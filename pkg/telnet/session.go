package telnet

import (
	"log"
	"strconv"

	"github.com/crystal-mush/sourcemud/pkg/zmp"
)

// SendZMP sends a ZMP command if the client accepted the option.
func (e *Engine) SendZMP(args ...string) {
	if !e.zmpOn || len(args) == 0 {
		return
	}
	payload, err := zmp.Pack(args...)
	if err != nil {
		log.Printf("[%s] zmp: %v", e.id, err)
		return
	}
	e.emit(Subnegotiate(TeloptZMP, payload))
}

// SetSupport records a package the client says it does or does not
// handle. Enabling color.define switches colors to ZMP and pushes the
// palette.
func (e *Engine) SetSupport(pkg string, supported bool) {
	e.support[pkg] = supported
	if pkg != "color.define" {
		return
	}
	was := e.zmpColor
	e.zmpColor = supported
	if supported && !was {
		for i := 1; i < NumClasses; i++ {
			e.SendZMP("color.define", strconv.Itoa(i), ClassNames[i], ClassRGB[i])
		}
	}
}

// Supports reports whether the client announced support for pkg.
func (e *Engine) Supports(pkg string) bool {
	return e.support[pkg]
}
