package arq

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"stopwait/protocol"
)

// maxPrealloc bounds the capacity reserved from a peer's announced size.
// Anything larger grows by append as data actually arrives.
const maxPrealloc = 1 << 20

// Receiver is the other end of a Sender. It reads one segment at a time,
// lets the fault injector veto it, and reassembles what it accepts.
type Receiver struct {
	Clock  Clock
	Logger logrus.FieldLogger
	Fault  FaultInjector

	// MaxPayload > 0 bounds the reassembled buffer.
	MaxPayload int64

	conn    io.ReadWriter
	segSize int
	stats   ReceiverStats
}

func NewReceiver(conn io.ReadWriter, maxSegmentSize int) *Receiver {
	return &Receiver{
		Clock:   SystemClock{},
		Logger:  logrus.StandardLogger(),
		Fault:   NoFault,
		conn:    conn,
		segSize: maxSegmentSize,
	}
}

func (r *Receiver) Stats() *ReceiverStats {
	return &r.stats
}

// Receive runs until the final segment is accepted and acknowledged.
// sizeHint pre-sizes the buffer; it is not trusted as the final length.
func (r *Receiver) Receive(sizeHint int64) (*Result, error) {
	if r.segSize < 1 {
		return nil, fmt.Errorf("segment size must be positive, got %d", r.segSize)
	}
	if sizeHint < 0 {
		sizeHint = 0
	}
	if r.MaxPayload > 0 && sizeHint > r.MaxPayload {
		return nil, protocol.NewResourceError(
			fmt.Sprintf("announced size %d exceeds limit of %d", sizeHint, r.MaxPayload))
	}

	buf := make([]byte, 0, min(sizeHint, maxPrealloc))
	scratch := make([]byte, protocol.HeaderSize+r.segSize)

	start := r.Clock.Now()
	for done := false; !done; {
		f, err := protocol.DecodeBuffer(r.conn, scratch, r.segSize)
		if err != nil {
			return nil, r.abort(err)
		}
		if err := protocol.Expect(f, protocol.FrameSegment); err != nil {
			return nil, r.abort(err)
		}
		n := len(f.Payload)
		if n == 0 {
			return nil, r.abort(protocol.NewProtocolError(protocol.ErrCodeBadFrame, "empty segment"))
		}
		r.stats.RawBytes.Add(int64(n))

		if r.Fault.Reject() {
			r.stats.Rejected.Inc()
			r.Logger.WithField("bytes", n).Debug("Segment rejected, sending NACK")
			if err := protocol.WriteAck(r.conn, protocol.Nack); err != nil {
				return nil, r.abort(err)
			}
			continue
		}

		data := f.Payload
		if f.IsEnd() {
			if data[n-1] != protocol.Sentinel {
				return nil, r.abort(protocol.NewProtocolError(protocol.ErrCodeMissingSentinel,
					"final segment does not end with the sentinel byte"))
			}
			data = data[:n-1]
			done = true
		}
		if r.MaxPayload > 0 && int64(len(buf)+len(data)) > r.MaxPayload {
			return nil, r.abort(protocol.NewResourceError(
				fmt.Sprintf("received data exceeds limit of %d", r.MaxPayload)))
		}

		buf = append(buf, data...)
		r.stats.AcceptedBytes.Add(int64(len(data)))
		r.stats.Segments.Inc()

		if err := protocol.WriteAck(r.conn, protocol.Ack); err != nil {
			return nil, r.abort(err)
		}
	}
	end := r.Clock.Now()

	res := &Result{
		Data:          buf,
		AcceptedBytes: r.stats.AcceptedBytes.Load(),
		RawBytes:      r.stats.RawBytes.Load(),
		Segments:      r.stats.Segments.Load(),
		Rejected:      r.stats.Rejected.Load(),
		Elapsed:       Elapsed(start, end),
	}
	r.Logger.WithFields(logrus.Fields{
		"bytes":    res.AcceptedBytes,
		"raw":      res.RawBytes,
		"rejected": res.Rejected,
	}).Info("A file has been successfully received")
	return res, nil
}

func (r *Receiver) abort(err error) error {
	r.Logger.WithFields(logrus.Fields{
		"accepted": r.stats.AcceptedBytes.Load(),
		"raw":      r.stats.RawBytes.Load(),
	}).WithError(err).Error("Receive aborted")
	return err
}
