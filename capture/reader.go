package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// Record is one logged packet.
type Record struct {
	RecvTime time.Time
	Data     []byte
}

// Reader streams records from a capture log in file order.
type Reader struct {
	r io.ReadCloser
}

func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	hdr := make([]byte, globalHdrLen)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != Magic {
		f.Close()
		return nil, fmt.Errorf("not a capture log: bad magic 0x%x", binary.LittleEndian.Uint32(hdr[0:4]))
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != Version {
		f.Close()
		return nil, fmt.Errorf("unsupported capture version %d", v)
	}
	return &Reader{r: f}, nil
}

// Next returns the next record, or io.EOF at end of log. A truncated final
// record also reports io.EOF; everything before it has been delivered.
func (r *Reader) Next() (Record, error) {
	hdr := make([]byte, recordHdrLen)
	if _, err := io.ReadFull(r.r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return Record{}, err
	}
	recv := time.UnixMicro(int64(binary.LittleEndian.Uint64(hdr[0:8])))
	n := binary.LittleEndian.Uint32(hdr[8:12])
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return Record{}, err
	}
	return Record{RecvTime: recv, Data: data}, nil
}

func (r *Reader) Close() error { return r.r.Close() }
