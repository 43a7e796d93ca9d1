package arq

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"stopwait/protocol"
)

// ErrNoDeadline is returned by Send when AckTimeout is set on a connection
// that cannot enforce read deadlines.
var ErrNoDeadline = errors.New("ack timeout set but connection has no read deadline")

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Sender drives one transfer over conn: send a segment, block for its
// ACK/NACK, resend on NACK, advance on ACK. Exactly one segment is in
// flight. There is no timer-driven resend.
type Sender struct {
	Clock  Clock
	Logger logrus.FieldLogger

	// AckTimeout > 0 aborts the session when no ack arrives in time. It
	// never triggers a resend. Send fails with ErrNoDeadline when conn has
	// no read deadlines.
	AckTimeout time.Duration

	// MaxPayload > 0 rejects larger payloads before anything is sent.
	MaxPayload int64

	conn    io.ReadWriter
	segSize int
	stats   SenderStats
}

func NewSender(conn io.ReadWriter, maxSegmentSize int) *Sender {
	return &Sender{
		Clock:   SystemClock{},
		Logger:  logrus.StandardLogger(),
		conn:    conn,
		segSize: maxSegmentSize,
	}
}

// Stats stays valid after Send returns, including after a failure.
func (s *Sender) Stats() *SenderStats {
	return &s.stats
}

// Send transfers payload and returns the timing report. Any error is fatal
// for the session.
func (s *Sender) Send(payload []byte) (*Report, error) {
	if _, ok := s.conn.(deadliner); s.AckTimeout > 0 && !ok {
		return nil, ErrNoDeadline
	}
	stream, err := NewByteStream(payload, s.MaxPayload)
	if err != nil {
		return nil, err
	}
	segmenter, err := NewSegmenter(stream, s.segSize)
	if err != nil {
		return nil, err
	}

	s.Logger.Debugf("The file length is %d bytes, packet length is %d bytes", len(payload), s.segSize)

	segments := 0
	start := s.Clock.Now()
	for {
		seg, ok := segmenter.Next()
		if !ok {
			break
		}
		if err := s.deliver(seg); err != nil {
			s.Logger.WithFields(logrus.Fields{
				"segment": seg.Index,
				"offset":  seg.Offset,
			}).WithError(err).Error("Transfer aborted")
			return nil, err
		}
		segments++
	}
	end := s.Clock.Now()
	s.stats.setState(StateDone)
	s.clearDeadline()

	report := &Report{
		Elapsed:         Elapsed(start, end),
		PayloadBytes:    int64(stream.PayloadLen()),
		Cursor:          s.stats.Cursor.Load(),
		TotalBytesSent:  s.stats.TotalBytesSent.Load(),
		PacketsSent:     s.stats.PacketsSent.Load(),
		Retransmissions: s.stats.Retransmissions.Load(),
		Segments:        segments,
	}
	s.Logger.WithFields(logrus.Fields{
		"bytes":   report.PayloadBytes,
		"packets": report.PacketsSent,
		"resends": report.Retransmissions,
		"ms":      report.ElapsedMillis(),
	}).Info("Transfer complete")
	return report, nil
}

// deliver loops in AwaitingAck until seg is acknowledged.
func (s *Sender) deliver(seg Segment) error {
	flags := protocol.FlagNone
	if seg.Last {
		flags = protocol.FlagEnd
	}
	frame := &protocol.Frame{Type: protocol.FrameSegment, Flags: flags, Payload: seg.Data}

	for {
		s.stats.setState(StateIdle)
		if err := protocol.Encode(s.conn, frame); err != nil {
			return err
		}
		s.stats.PacketsSent.Inc()
		s.stats.TotalBytesSent.Add(int64(seg.Len()))
		s.stats.setState(StateAwaitingAck)

		ack, err := s.awaitAck()
		if err != nil {
			return err
		}
		if ack.IsAck() {
			s.stats.Cursor.Add(int64(seg.Len()))
			s.stats.setState(StateIdle)
			return nil
		}

		s.stats.Retransmissions.Inc()
		s.Logger.WithFields(logrus.Fields{
			"segment": seg.Index,
			"offset":  seg.Offset,
		}).Debug("NACK received, retransmitting")
	}
}

func (s *Sender) awaitAck() (protocol.AckMessage, error) {
	if s.AckTimeout > 0 {
		if d, ok := s.conn.(deadliner); ok {
			if err := d.SetReadDeadline(time.Now().Add(s.AckTimeout)); err != nil {
				return protocol.AckMessage{}, protocol.NewTransportError("set read deadline", err)
			}
		}
	}
	return protocol.ReadAck(s.conn)
}

func (s *Sender) clearDeadline() {
	if s.AckTimeout <= 0 {
		return
	}
	if d, ok := s.conn.(deadliner); ok {
		if err := d.SetReadDeadline(time.Time{}); err != nil {
			s.Logger.WithError(err).Debug("Error clearing read deadline")
		}
	}
}
