package arq

import (
	"go.uber.org/atomic"
)

// SenderState is where the stop-and-wait machine currently sits.
type SenderState int32

const (
	StateIdle SenderState = iota
	StateAwaitingAck
	StateDone
)

func (s SenderState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingAck:
		return "AwaitingAck"
	case StateDone:
		return "Done"
	default:
		return "undefined"
	}
}

// SenderStats is written only by the session goroutine. The atomics let a
// progress reporter read it concurrently.
type SenderStats struct {
	Cursor          atomic.Int64 // bytes of the stream confirmed delivered
	TotalBytesSent  atomic.Int64 // includes retransmissions
	PacketsSent     atomic.Int64
	Retransmissions atomic.Int64
	state           atomic.Int32
}

func (s *SenderStats) State() SenderState {
	return SenderState(s.state.Load())
}

func (s *SenderStats) setState(st SenderState) {
	s.state.Store(int32(st))
}

type ReceiverStats struct {
	AcceptedBytes atomic.Int64 // payload appended, sentinel excluded
	RawBytes      atomic.Int64 // every segment byte read, rejected ones included
	Segments      atomic.Int64 // accepted segments
	Rejected      atomic.Int64
}

// Report summarizes a completed send.
type Report struct {
	Elapsed         Timestamp
	PayloadBytes    int64
	Cursor          int64
	TotalBytesSent  int64
	PacketsSent     int64
	Retransmissions int64
	Segments        int
}

func (r *Report) ElapsedMillis() float64 {
	return r.Elapsed.Millis()
}

// Throughput is in Kbytes/s.
func (r *Report) Throughput() float64 {
	return Throughput(r.PayloadBytes, r.Elapsed.Millis())
}

func (r *Report) MbitPerSec() float64 {
	return r.Throughput() * 8 / 1000
}

// Result is what a completed receive hands to the output sink.
type Result struct {
	Data          []byte
	AcceptedBytes int64
	RawBytes      int64
	Segments      int64
	Rejected      int64
	Elapsed       Timestamp
}

func (r *Result) Throughput() float64 {
	return Throughput(r.AcceptedBytes, r.Elapsed.Millis())
}
