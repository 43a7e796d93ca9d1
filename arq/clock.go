package arq

import "time"

const usecPerSec = 1000000

// Timestamp is a wall-clock reading split into whole seconds and
// microseconds, the resolution transfer times are reported in.
type Timestamp struct {
	Sec  int64
	Usec int64
}

func FromTime(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Usec: int64(t.Nanosecond() / 1000)}
}

// Clock is the time source for a session. Tests substitute a fixed one.
type Clock interface {
	Now() Timestamp
}

type SystemClock struct{}

func (SystemClock) Now() Timestamp { return FromTime(time.Now()) }

// Elapsed returns end - start. When end's microseconds are smaller than
// start's, one second is borrowed.
func Elapsed(start, end Timestamp) Timestamp {
	d := Timestamp{Sec: end.Sec - start.Sec, Usec: end.Usec - start.Usec}
	if d.Usec < 0 {
		d.Sec--
		d.Usec += usecPerSec
	}
	return d
}

// Millis is the timestamp in milliseconds.
func (t Timestamp) Millis() float64 {
	return float64(t.Sec)*1000.0 + float64(t.Usec)/1000.0
}

func (t Timestamp) Duration() time.Duration {
	return time.Duration(t.Sec)*time.Second + time.Duration(t.Usec)*time.Microsecond
}

// Throughput is bytes per millisecond, i.e. Kbytes/s. Zero elapsed time
// yields zero rather than +Inf.
func Throughput(payloadBytes int64, elapsedMillis float64) float64 {
	if elapsedMillis <= 0 {
		return 0
	}
	return float64(payloadBytes) / elapsedMillis
}
