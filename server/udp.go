package server

import (
	"log"
	"net"
	"sync/atomic"

	"github.com/lelanhus/ruckcore/capture"
	"github.com/lelanhus/ruckcore/engine"
)

const (
	DefaultPort   = 44400
	MaxPacketSize = 65535
)

// UDPServer receives sample datagrams, tees them into an optional capture
// log, and enqueues decoded samples into the session. The socket loop never
// blocks on the engine: session enqueue is drop-on-full by design.
type UDPServer struct {
	conn    *net.UDPConn
	session *engine.Session
	cap     *capture.Writer
	running atomic.Bool

	packets uint64
	samples uint64
}

func NewUDPServer(port int, session *engine.Session) (*UDPServer, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.UDPAddr{Port: port, IP: net.ParseIP("0.0.0.0")}
	conn, err := net.ListenUDP("udp", &addr)
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(256 * 1024)
	return &UDPServer{conn: conn, session: session}, nil
}

// SetCaptureWriter enables the raw-packet capture tee.
func (s *UDPServer) SetCaptureWriter(w *capture.Writer) { s.cap = w }

func (s *UDPServer) Start() {
	s.running.Store(true)
	buf := make([]byte, MaxPacketSize)
	log.Printf("UDP server listening on %s", s.conn.LocalAddr())

	for s.running.Load() {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.running.Load() {
				log.Printf("udp read error: %v", err)
			}
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.handlePacket(data)
	}
}

func (s *UDPServer) Stop() {
	s.running.Store(false)
	s.conn.Close()
}

func (s *UDPServer) handlePacket(data []byte) {
	atomic.AddUint64(&s.packets, 1)
	if s.cap != nil {
		if err := s.cap.WritePacket(data); err != nil {
			log.Printf("capture write error: %v", err)
		}
	}
	for _, smp := range DecodeFrames(data) {
		atomic.AddUint64(&s.samples, 1)
		switch v := smp.(type) {
		case engine.PositionFix:
			s.session.OnPosition(v)
		case engine.MotionSample:
			s.session.OnMotion(v)
		case engine.PressureSample:
			s.session.OnPressure(v)
		case engine.PowerState:
			s.session.OnPower(v)
		}
	}
}

// Stats returns the packet and sample counters.
func (s *UDPServer) Stats() (packets, samples uint64) {
	return atomic.LoadUint64(&s.packets), atomic.LoadUint64(&s.samples)
}
