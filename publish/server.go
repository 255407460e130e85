package publish

import (
	"net"
	"runtime"
	"time"

	"github.com/alitto/pond"
	"github.com/charmbracelet/log"
)

// Transport is the underlying socket kind a Server instance binds.
type Transport int

const (
	UDP Transport = iota
	TCP
)

// Handler is the control-plane callback pair a Server instance is
// parameterized over (spec.md §4.6's on_read/on_handle). Read parses
// one request from raw bytes off addr; Handle produces the reply
// payload to send back synchronously. Either may return a nil/empty
// result to signal "no reply required".
type Handler interface {
	Read(addr string, data []byte) (req any, err error)
	Handle(addr string, req any) (reply []byte, err error)
}

// Server is one Publish Server instance (spec.md §4.6): a bound
// socket, a connection table, and — for PUBSUB mode — a worker pool
// fanning broadcast sends out to every live peer without blocking the
// producer longer than one non-blocking send per peer. The three
// pre-configured pipeline instances (MB1 publisher, TRN req/rep, TRN
// update publisher) are each one Server value.
type Server struct {
	Name      string
	Transport Transport
	Mode      Mode
	Table     *Table
	Handler   Handler

	conn net.PacketConn // UDP path
	ln   net.Listener   // TCP path

	pool *pond.WorkerPool

	SendFailures uint64
}

// NewServer constructs a Server bound to addr. The worker pool sized
// at 2*NumCPU mirrors the teacher's cmd/main.go fixed-pool convention,
// here fanning out per-peer sends instead of per-file conversions.
func NewServer(name string, transport Transport, mode Mode, addr string, table *Table, handler Handler) (*Server, error) {
	s := &Server{
		Name: name, Transport: transport, Mode: mode, Table: table, Handler: handler,
		pool: pond.New(runtime.NumCPU()*2, 0, pond.MinWorkers(runtime.NumCPU()*2)),
	}

	switch transport {
	case UDP:
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	case TCP:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		s.ln = ln
	}

	return s, nil
}

// Close releases the bound socket and drains the worker pool.
func (s *Server) Close() error {
	s.pool.StopAndWait()
	if s.conn != nil {
		return s.conn.Close()
	}
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// Publish enqueues payload for best-effort, non-blocking delivery to
// every live PUBSUB peer. A send that would block or fails is counted
// in SendFailures and otherwise ignored — the peer is retained until
// heartbeat expiry (spec.md §4.6).
func (s *Server) Publish(payload []byte) {
	if s.Mode != PubSub || s.conn == nil {
		return
	}
	peers := s.Table.Live(PubSub)
	for _, addr := range peers {
		addr := addr
		s.pool.Submit(func() {
			raddr, err := net.ResolveUDPAddr("udp", addr)
			if err != nil {
				s.SendFailures++
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
			if _, err := s.conn.WriteTo(payload, raddr); err != nil {
				s.SendFailures++
				log.Debug("publish send failed", "server", s.Name, "peer", addr, "err", err)
				return
			}
			s.Table.Decrement(addr)
		})
	}
}

// ServeUDP runs the PUBSUB/control-plane receive loop for a
// UDP-backed instance: each datagram is parsed, touches the peer's
// heartbeat, and — when the handler produces a reply — is answered
// synchronously on the same socket. Intended to run on the controller
// thread alongside the main pipeline loop's own read timeout.
func (s *Server) ServeUDP(readTimeout time.Duration) error {
	buf := make([]byte, 64*1024)
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	n, raddr, err := s.conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		return err
	}

	addr := raddr.String()
	now := time.Now()
	if !s.Table.Touch(addr, now) {
		s.Table.Subscribe(addr, s.Mode, now)
	}

	req, err := s.Handler.Read(addr, buf[:n])
	if err != nil {
		log.Warn("publish server malformed request", "server", s.Name, "peer", addr, "err", err)
		return nil
	}

	reply, err := s.Handler.Handle(addr, req)
	if err != nil {
		log.Warn("publish server handler error", "server", s.Name, "peer", addr, "err", err)
		return nil
	}
	if len(reply) == 0 {
		return nil
	}
	_, err = s.conn.WriteTo(reply, raddr)
	s.Table.Decrement(addr)
	return err
}

// ServeTCP accepts exactly one pending connection (if any) and runs a
// single request/reply exchange to completion — the REQRES mode used
// by the TRN instance to guard access to the estimator. A production
// deployment would accept concurrently; the controller's single-
// threaded cooperative model (spec.md §5) instead polls this once per
// cycle so the estimator is only ever touched from the controller
// thread.
func (s *Server) ServeTCP(acceptTimeout time.Duration) error {
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	if tl, ok := s.ln.(deadliner); ok {
		_ = tl.SetDeadline(time.Now().Add(acceptTimeout))
	}

	conn, err := s.ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		return err
	}
	defer conn.Close()

	addr := conn.RemoteAddr().String()
	now := time.Now()
	if !s.Table.Touch(addr, now) {
		s.Table.Subscribe(addr, s.Mode, now)
	}

	buf := make([]byte, 64*1024)
	_ = conn.SetReadDeadline(time.Now().Add(acceptTimeout))
	n, err := conn.Read(buf)
	if err != nil {
		return nil
	}

	req, err := s.Handler.Read(addr, buf[:n])
	if err != nil {
		log.Warn("publish server malformed request", "server", s.Name, "peer", addr, "err", err)
		return nil
	}
	reply, err := s.Handler.Handle(addr, req)
	if err != nil {
		log.Warn("publish server handler error", "server", s.Name, "peer", addr, "err", err)
		return nil
	}
	if len(reply) > 0 {
		_, _ = conn.Write(reply)
	}
	s.Table.Decrement(addr)
	return nil
}

// Sweep prunes peers past their heartbeat timeout; called once per
// controller cycle.
func (s *Server) Sweep() []string {
	return s.Table.Sweep(time.Now())
}

// Poll runs one control-plane exchange for whichever transport this
// instance is bound to (ServeUDP for UDP/PUBSUB, ServeTCP for
// TCP/REQRES), returning promptly via timeout when no peer traffic is
// pending. The Pipeline Controller calls this once per cycle per
// configured Server instance, keeping every peer interaction
// (subscribe, heartbeat, request/reply) on the single controller
// thread alongside the Frame Reader poll (spec.md §5).
func (s *Server) Poll(timeout time.Duration) error {
	switch s.Transport {
	case UDP:
		return s.ServeUDP(timeout)
	case TCP:
		return s.ServeTCP(timeout)
	default:
		return nil
	}
}
