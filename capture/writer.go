// Package capture implements an append-only binary log of raw sample
// packets with receive timestamps, plus a reader that streams the records
// back in file order. The layout is a fixed global header followed by
// length-prefixed records, so a truncated tail loses at most one record.
package capture

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"
)

const (
	Magic   = 0x474C4B52 // "RKLG" little-endian
	Version = 1

	globalHdrLen = 16
	recordHdrLen = 12
)

// Writer appends packets to a capture log. Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cw := &Writer{w: f, buf: make([]byte, recordHdrLen)}
	if err := cw.writeGlobalHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

func (w *Writer) writeGlobalHeader() error {
	// magic(4), version(2), reserved(2), created unix micro(8)
	b := make([]byte, globalHdrLen)
	binary.LittleEndian.PutUint32(b[0:], Magic)
	binary.LittleEndian.PutUint16(b[4:], Version)
	binary.LittleEndian.PutUint64(b[8:], uint64(time.Now().UnixMicro()))
	_, err := w.w.Write(b)
	return err
}

// WritePacket appends one raw packet stamped with the current time.
func (w *Writer) WritePacket(data []byte) error {
	return w.WritePacketAt(time.Now(), data)
}

// WritePacketAt appends one raw packet with an explicit receive time.
func (w *Writer) WritePacketAt(recv time.Time, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Record header: recv unix micro(8), payload len(4)
	binary.LittleEndian.PutUint64(w.buf[0:], uint64(recv.UnixMicro()))
	binary.LittleEndian.PutUint32(w.buf[8:], uint32(len(data)))
	if _, err := w.w.Write(w.buf[:recordHdrLen]); err != nil {
		return err
	}
	_, err := w.w.Write(data)
	return err
}

func (w *Writer) Close() error {
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

