package telnet

import (
	"maps"
	"slices"
	"strings"
)

// offers reports whether the engine is configured to perform opt.
func (e *Engine) offers(opt byte) bool {
	switch opt {
	case TeloptZMP:
		return e.registry != nil
	case TeloptMSSP:
		return e.cfg.Status != nil
	}
	return true
}

// EncodeMSSP builds an MSSP subnegotiation payload. Keys are sorted so the
// output is stable; a key with several values repeats MSSP_VAL.
func EncodeMSSP(vars map[string][]string) []byte {
	var buf []byte
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		buf = append(buf, MSSPVar)
		buf = append(buf, sanitizeMSSP(k)...)
		for _, v := range vars[k] {
			buf = append(buf, MSSPVal)
			buf = append(buf, sanitizeMSSP(v)...)
		}
	}
	return buf
}

// sanitizeMSSP strips the bytes that would end a variable early.
func sanitizeMSSP(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 || r == rune(MSSPVar) || r == rune(MSSPVal) {
			return -1
		}
		return r
	}, s)
}

func (e *Engine) sendMSSP() {
	vars := e.cfg.Status()
	debugf("[%s] send MSSP (%d vars)", e.id, len(vars))
	e.emit(Subnegotiate(TeloptMSSP, EncodeMSSP(vars)))
}
