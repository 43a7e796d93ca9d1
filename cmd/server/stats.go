package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"stopwait/arq"
)

// ServerStats aggregates every session the server has seen.
type ServerStats struct {
	sessions      int64
	completed     int64
	failed        int64
	rejected      int64 // hellos answered with NACK
	acceptedBytes int64
	rawBytes      int64
	nacks         int64
	segments      int64
	startTime     time.Time
	mu            sync.Mutex
}

func NewServerStats() *ServerStats {
	return &ServerStats{startTime: time.Now()}
}

func (s *ServerStats) sessionStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
}

func (s *ServerStats) sessionRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

// sessionFailed folds in whatever the receiver counted before it aborted.
func (s *ServerStats) sessionFailed(rs *arq.ReceiverStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	if rs != nil {
		s.rawBytes += rs.RawBytes.Load()
		s.nacks += rs.Rejected.Load()
	}
}

func (s *ServerStats) sessionCompleted(res *arq.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.acceptedBytes += res.AcceptedBytes
	s.rawBytes += res.RawBytes
	s.nacks += res.Rejected
	s.segments += res.Segments
}

// Snapshot is a copy of the counters taken under the lock.
type Snapshot struct {
	Sessions      int64
	Completed     int64
	Failed        int64
	Rejected      int64
	AcceptedBytes int64
	RawBytes      int64
	Nacks         int64
	Segments      int64
	Uptime        time.Duration
}

func (s *ServerStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Sessions:      s.sessions,
		Completed:     s.completed,
		Failed:        s.failed,
		Rejected:      s.rejected,
		AcceptedBytes: s.acceptedBytes,
		RawBytes:      s.rawBytes,
		Nacks:         s.nacks,
		Segments:      s.segments,
		Uptime:        time.Since(s.startTime),
	}
}

// Goodput is the share of received segment bytes that were kept.
func (s Snapshot) Goodput() float64 {
	if s.RawBytes == 0 {
		return 0
	}
	return float64(s.AcceptedBytes) / float64(s.RawBytes)
}

func (s *ServerStats) printFinalStats(w io.Writer) {
	snap := s.Snapshot()

	fmt.Fprintf(w, "\n========== Final Statistics ==========\n")
	fmt.Fprintf(w, "Total Running Time: %.2f seconds\n", snap.Uptime.Seconds())
	fmt.Fprintf(w, "Sessions: %d (completed %d, failed %d, rejected %d)\n",
		snap.Sessions, snap.Completed, snap.Failed, snap.Rejected)
	fmt.Fprintf(w, "Total Bytes Accepted: %d\n", snap.AcceptedBytes)
	fmt.Fprintf(w, "Total Bytes Received: %d\n", snap.RawBytes)
	fmt.Fprintf(w, "Segments Accepted: %d\n", snap.Segments)
	fmt.Fprintf(w, "NACKs Sent: %d\n", snap.Nacks)
	fmt.Fprintf(w, "Final Goodput: %.4f\n", snap.Goodput())
	fmt.Fprintf(w, "======================================\n")
}
