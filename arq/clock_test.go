package arq

import (
	"math"
	"testing"
	"time"
)

func TestElapsed(t *testing.T) {
	tests := []struct {
		name   string
		start  Timestamp
		end    Timestamp
		want   Timestamp
		millis float64
	}{
		{
			name:   "Borrow a second",
			start:  Timestamp{Sec: 10, Usec: 900000},
			end:    Timestamp{Sec: 11, Usec: 100000},
			want:   Timestamp{Sec: 0, Usec: 200000},
			millis: 200,
		},
		{
			name:   "Same second",
			start:  Timestamp{Sec: 5, Usec: 0},
			end:    Timestamp{Sec: 5, Usec: 500000},
			want:   Timestamp{Sec: 0, Usec: 500000},
			millis: 500,
		},
		{
			name:   "Whole seconds",
			start:  Timestamp{Sec: 1, Usec: 250},
			end:    Timestamp{Sec: 4, Usec: 250},
			want:   Timestamp{Sec: 3, Usec: 0},
			millis: 3000,
		},
		{
			name:   "Zero",
			start:  Timestamp{Sec: 7, Usec: 42},
			end:    Timestamp{Sec: 7, Usec: 42},
			want:   Timestamp{},
			millis: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Elapsed(tt.start, tt.end)
			if got != tt.want {
				t.Errorf("Elapsed = %+v, want %+v", got, tt.want)
			}
			if math.Abs(got.Millis()-tt.millis) > 1e-9 {
				t.Errorf("Millis = %f, want %f", got.Millis(), tt.millis)
			}
		})
	}
}

func TestFromTime(t *testing.T) {
	ts := FromTime(time.Unix(12, 345678900))
	if ts.Sec != 12 || ts.Usec != 345678 {
		t.Errorf("FromTime = %+v, want {12 345678}", ts)
	}
	if d := ts.Duration(); d != 12*time.Second+345678*time.Microsecond {
		t.Errorf("Duration = %v", d)
	}
}

func TestThroughput(t *testing.T) {
	if got := Throughput(10000, 200); got != 50 {
		t.Errorf("Throughput = %f, want 50", got)
	}
	if got := Throughput(10000, 0); got != 0 {
		t.Errorf("Throughput with zero elapsed = %f, want 0", got)
	}
}
