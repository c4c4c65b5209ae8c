package telnet

import (
	"compress/zlib"
	"log"
)

// transportWriter adapts Transport to io.Writer for the zlib stream.
type transportWriter struct {
	t Transport
}

func (w transportWriter) Write(p []byte) (int, error) {
	w.t.Buffer(p)
	return len(p), nil
}

// beginCompress announces MCCP2 and switches all later output to a zlib
// stream. The announcement itself goes out uncompressed.
func (e *Engine) beginCompress() {
	if e.zw != nil {
		return
	}
	e.t.Buffer(Subnegotiate(TeloptCompress2, nil).Data)
	e.zw = zlib.NewWriter(transportWriter{e.t})
	debugf("[%s] MCCP2 compression started", e.id)
}

// flushCompress pushes buffered compressed bytes to the transport. A sync
// flush always emits an empty block, so it only runs after new output.
func (e *Engine) flushCompress() {
	if e.zw == nil || !e.zdirty {
		return
	}
	e.zdirty = false
	if err := e.zw.Flush(); err != nil {
		log.Printf("[%s] compression flush: %v", e.id, err)
	}
}

// endCompress terminates the zlib stream so the client sees a clean end.
func (e *Engine) endCompress() {
	if e.zw == nil {
		return
	}
	if err := e.zw.Close(); err != nil {
		log.Printf("[%s] compression close: %v", e.id, err)
	}
	e.zw = nil
	e.zdirty = false
}
