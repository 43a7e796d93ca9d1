package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/net/netutil"

	"stopwait/arq"
	"stopwait/config"
	"stopwait/protocol"
)

type Server struct {
	listener net.Listener
	cfg      *config.Config
	log      logrus.FieldLogger
	stats    *ServerStats

	// newFault builds the reject decision for one session.
	newFault func(id uuid.UUID) arq.FaultInjector

	conns  map[uuid.UUID]net.Conn
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewServer serves transfers on listener. With MaxConns > 0 at most that
// many sessions run at once; further clients wait in the accept queue.
func NewServer(listener net.Listener, cfg *config.Config, log logrus.FieldLogger) *Server {
	if cfg.MaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConns)
	}
	s := &Server{
		listener: listener,
		cfg:      cfg,
		log:      log,
		stats:    NewServerStats(),
		conns:    make(map[uuid.UUID]net.Conn),
	}
	s.newFault = s.sessionFault
	return s
}

// sessionFault seeds each session's generator from its id so a run can be
// replayed from the logs.
func (s *Server) sessionFault(id uuid.UUID) arq.FaultInjector {
	if s.cfg.ErrorRate <= 0 {
		return arq.NoFault
	}
	src := rand.NewPCG(binary.BigEndian.Uint64(id[:8]), binary.BigEndian.Uint64(id[8:]))
	return arq.NewRandomFault(s.cfg.ErrorRate, src)
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Stats() *ServerStats {
	return s.stats
}

// Serve accepts until Close. It returns nil after a Close.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.WithError(err).Warn("Error accepting connection")
				continue
			}
			return protocol.NewTransportError("accept", err)
		}

		id := uuid.NewV4()
		if !s.track(id, conn) {
			conn.Close()
			return nil
		}
		go s.handleConnection(id, conn)
	}
}

// track registers a session; false once Close has started.
func (s *Server) track(id uuid.UUID, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[id] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// Close stops accepting, drops live sessions and waits for their handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	err := s.listener.Close()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) handleConnection(id uuid.UUID, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(id)
	defer conn.Close()

	log := s.log.WithFields(logrus.Fields{
		"session": id.String(),
		"remote":  conn.RemoteAddr().String(),
	})
	log.Info("New client connected")
	s.stats.sessionStarted()

	hello, err := protocol.ReadHello(conn)
	if err != nil {
		log.WithError(err).Error("Error reading hello")
		s.stats.sessionFailed(nil)
		return
	}
	log = log.WithFields(logrus.Fields{
		"name":    hello.Name,
		"size":    hello.PayloadSize,
		"segsize": hello.MaxSegmentSize,
	})

	if reason := s.admit(hello); reason != "" {
		log.WithField("reason", reason).Warn("Transfer rejected")
		s.stats.sessionRejected()
		if err := protocol.WriteAck(conn, protocol.Nack); err != nil {
			log.WithError(err).Debug("Error sending NACK")
		}
		return
	}
	if err := protocol.WriteAck(conn, protocol.Ack); err != nil {
		log.WithError(err).Error("Error accepting transfer")
		s.stats.sessionFailed(nil)
		return
	}

	recv := arq.NewReceiver(conn, int(hello.MaxSegmentSize))
	recv.Logger = log
	recv.Fault = s.newFault(id)
	recv.MaxPayload = s.cfg.MaxTransferSize

	res, err := recv.Receive(int64(hello.PayloadSize))
	if err != nil {
		s.stats.sessionFailed(recv.Stats())
		return
	}

	path, err := s.store(id, hello.Name, res.Data)
	if err != nil {
		log.WithError(err).Error("Error writing output")
		s.stats.sessionFailed(recv.Stats())
		return
	}
	s.stats.sessionCompleted(res)
	log.WithFields(logrus.Fields{
		"output":   path,
		"accepted": res.AcceptedBytes,
		"raw":      res.RawBytes,
		"rejected": res.Rejected,
		"kbps":     fmt.Sprintf("%.3f", res.Throughput()),
	}).Info("Output written")
}

// admit returns why a hello is refused, or "" to accept it.
func (s *Server) admit(h *protocol.Hello) string {
	if int64(h.MaxSegmentSize) > int64(s.cfg.MaxSegmentSize) {
		return fmt.Sprintf("segment size %d above limit %d", h.MaxSegmentSize, s.cfg.MaxSegmentSize)
	}
	if h.PayloadSize > math.MaxInt64 {
		return fmt.Sprintf("payload size %d is not representable", h.PayloadSize)
	}
	if s.cfg.MaxTransferSize > 0 && h.PayloadSize > uint64(s.cfg.MaxTransferSize) {
		return fmt.Sprintf("payload size %d above limit %d", h.PayloadSize, s.cfg.MaxTransferSize)
	}
	return ""
}

// store writes data under the output directory through a temp file so a
// reader never sees a partial file.
func (s *Server) store(id uuid.UUID, name string, data []byte) (string, error) {
	dir := s.cfg.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".stopwait-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, outputName(id, name))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// outputName never lets the peer pick a directory.
func outputName(id uuid.UUID, name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		base = "receivedTCPFile.txt"
	}
	return fmt.Sprintf("received_%s_%s", id.String()[:8], base)
}
