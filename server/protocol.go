// Package server carries the binary sample wire protocol and the UDP ingest
// loop that feeds a session. Frames are little-endian, self-delimiting, and
// tolerant of garbage between them: a parser that loses sync scans forward
// for the next magic.
package server

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/lelanhus/ruckcore/engine"
)

const (
	FrameMagic  = 0x4B52 // "RK" little-endian
	FrameVer    = 1
	FrameHdrLen = 6

	TypePosition = 0x01
	TypeMotion   = 0x02
	TypePressure = 0x03
	TypePower    = 0x04

	positionBodyLen = 64
	motionBodyLen   = 56
	pressureBodyLen = 16
	powerBodyLen    = 17
)

// Header is the fixed frame prefix: magic(2), version(1), type(1), len(2).
type Header struct {
	Version uint8
	Type    uint8
	BodyLen int
}

// ParseHeader parses a frame header from the start of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < FrameHdrLen {
		return nil, fmt.Errorf("frame too short")
	}
	if binary.LittleEndian.Uint16(data[0:2]) != FrameMagic {
		return nil, fmt.Errorf("invalid magic: 0x%x", binary.LittleEndian.Uint16(data[0:2]))
	}
	if data[2] != FrameVer {
		return nil, fmt.Errorf("unsupported version %d", data[2])
	}
	return &Header{
		Version: data[2],
		Type:    data[3],
		BodyLen: int(binary.LittleEndian.Uint16(data[4:6])),
	}, nil
}

func putHeader(buf []byte, typ uint8, bodyLen int) {
	binary.LittleEndian.PutUint16(buf[0:2], FrameMagic)
	buf[2] = FrameVer
	buf[3] = typ
	binary.LittleEndian.PutUint16(buf[4:6], uint16(bodyLen))
}

func putF64(buf []byte, off int, v float64) int {
	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
	return off + 8
}

func getF64(buf []byte, off int) (float64, int) {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:])), off + 8
}

// EncodeSample serializes any engine sample into one frame.
func EncodeSample(s engine.Sample) ([]byte, error) {
	switch v := s.(type) {
	case engine.PositionFix:
		return EncodePosition(v), nil
	case engine.MotionSample:
		return EncodeMotion(v), nil
	case engine.PressureSample:
		return EncodePressure(v), nil
	case engine.PowerState:
		return EncodePower(v), nil
	}
	return nil, fmt.Errorf("unknown sample type %T", s)
}

func EncodePosition(f engine.PositionFix) []byte {
	buf := make([]byte, FrameHdrLen+positionBodyLen)
	putHeader(buf, TypePosition, positionBodyLen)
	off := FrameHdrLen
	binary.LittleEndian.PutUint64(buf[off:], uint64(f.Timestamp.UnixMilli()))
	off += 8
	off = putF64(buf, off, f.Latitude)
	off = putF64(buf, off, f.Longitude)
	off = putF64(buf, off, f.HorizontalAccuracy)
	off = putF64(buf, off, f.Altitude)
	off = putF64(buf, off, f.VerticalAccuracy)
	off = putF64(buf, off, f.Speed)
	putF64(buf, off, f.Course)
	return buf
}

func EncodeMotion(m engine.MotionSample) []byte {
	buf := make([]byte, FrameHdrLen+motionBodyLen)
	putHeader(buf, TypeMotion, motionBodyLen)
	off := FrameHdrLen
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.Timestamp.UnixMilli()))
	off += 8
	for i := 0; i < 3; i++ {
		off = putF64(buf, off, m.Acceleration[i])
	}
	for i := 0; i < 3; i++ {
		off = putF64(buf, off, m.RotationRate[i])
	}
	return buf
}

func EncodePressure(p engine.PressureSample) []byte {
	buf := make([]byte, FrameHdrLen+pressureBodyLen)
	putHeader(buf, TypePressure, pressureBodyLen)
	off := FrameHdrLen
	binary.LittleEndian.PutUint64(buf[off:], uint64(p.Timestamp.UnixMilli()))
	off += 8
	putF64(buf, off, p.RelativeAltitude)
	return buf
}

func EncodePower(p engine.PowerState) []byte {
	buf := make([]byte, FrameHdrLen+powerBodyLen)
	putHeader(buf, TypePower, powerBodyLen)
	off := FrameHdrLen
	binary.LittleEndian.PutUint64(buf[off:], uint64(p.Timestamp.UnixMilli()))
	off += 8
	off = putF64(buf, off, p.BatteryPct)
	if p.LowPower {
		buf[off] = 1
	}
	return buf
}

func decodeBody(typ uint8, body []byte) (engine.Sample, error) {
	switch typ {
	case TypePosition:
		if len(body) < positionBodyLen {
			return nil, fmt.Errorf("position frame truncated")
		}
		ts := time.UnixMilli(int64(binary.LittleEndian.Uint64(body[0:8])))
		off := 8
		var f engine.PositionFix
		f.Timestamp = ts
		f.Latitude, off = getF64(body, off)
		f.Longitude, off = getF64(body, off)
		f.HorizontalAccuracy, off = getF64(body, off)
		f.Altitude, off = getF64(body, off)
		f.VerticalAccuracy, off = getF64(body, off)
		f.Speed, off = getF64(body, off)
		f.Course, _ = getF64(body, off)
		return f, nil
	case TypeMotion:
		if len(body) < motionBodyLen {
			return nil, fmt.Errorf("motion frame truncated")
		}
		ts := time.UnixMilli(int64(binary.LittleEndian.Uint64(body[0:8])))
		off := 8
		var m engine.MotionSample
		m.Timestamp = ts
		for i := 0; i < 3; i++ {
			m.Acceleration[i], off = getF64(body, off)
		}
		for i := 0; i < 3; i++ {
			m.RotationRate[i], off = getF64(body, off)
		}
		return m, nil
	case TypePressure:
		if len(body) < pressureBodyLen {
			return nil, fmt.Errorf("pressure frame truncated")
		}
		ts := time.UnixMilli(int64(binary.LittleEndian.Uint64(body[0:8])))
		alt, _ := getF64(body, 8)
		return engine.PressureSample{RelativeAltitude: alt, Timestamp: ts}, nil
	case TypePower:
		if len(body) < powerBodyLen {
			return nil, fmt.Errorf("power frame truncated")
		}
		ts := time.UnixMilli(int64(binary.LittleEndian.Uint64(body[0:8])))
		bat, off := getF64(body, 8)
		return engine.PowerState{BatteryPct: bat, LowPower: body[off] == 1, Timestamp: ts}, nil
	}
	return nil, fmt.Errorf("unknown frame type 0x%x", typ)
}

// DecodeFrames extracts every sample frame from a datagram. Multiple frames
// per datagram are allowed; bytes that do not parse are skipped one at a
// time until the next magic resyncs the scan.
func DecodeFrames(data []byte) []engine.Sample {
	var out []engine.Sample
	offset := 0
	for offset+FrameHdrLen <= len(data) {
		hdr, err := ParseHeader(data[offset:])
		if err != nil {
			offset++
			continue
		}
		total := FrameHdrLen + hdr.BodyLen
		if offset+total > len(data) {
			break
		}
		body := data[offset+FrameHdrLen : offset+total]
		s, err := decodeBody(hdr.Type, body)
		if err != nil {
			offset++
			continue
		}
		out = append(out, s)
		offset += total
	}
	return out
}
