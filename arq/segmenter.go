package arq

import (
	"fmt"

	"stopwait/protocol"
)

// ByteStream is the payload followed by one sentinel byte. It is built once
// and never written again.
type ByteStream struct {
	buf []byte
}

// NewByteStream copies payload into a fresh N+1 byte buffer and appends the
// sentinel. A limit > 0 caps the payload size.
func NewByteStream(payload []byte, limit int64) (*ByteStream, error) {
	if limit > 0 && int64(len(payload)) > limit {
		return nil, protocol.NewResourceError(
			fmt.Sprintf("payload of %d bytes exceeds limit of %d", len(payload), limit))
	}
	buf := make([]byte, len(payload)+1)
	copy(buf, payload)
	buf[len(payload)] = protocol.Sentinel
	return &ByteStream{buf: buf}, nil
}

// Len includes the sentinel.
func (b *ByteStream) Len() int { return len(b.buf) }

// PayloadLen excludes the sentinel.
func (b *ByteStream) PayloadLen() int { return len(b.buf) - 1 }

// Segment is a window onto the ByteStream. Data aliases the stream, so a
// retransmission sends exactly the bytes of the first attempt.
type Segment struct {
	Index  int
	Offset int
	Data   []byte
	Last   bool
}

func (s Segment) Len() int { return len(s.Data) }

// Segmenter hands out segments in order. It cannot be rewound.
type Segmenter struct {
	stream  *ByteStream
	maxSize int
	offset  int
	index   int
}

func NewSegmenter(stream *ByteStream, maxSegmentSize int) (*Segmenter, error) {
	if maxSegmentSize < 1 {
		return nil, fmt.Errorf("segment size must be positive, got %d", maxSegmentSize)
	}
	return &Segmenter{stream: stream, maxSize: maxSegmentSize}, nil
}

// Next returns the next segment, or false once the sentinel segment has
// been handed out.
func (s *Segmenter) Next() (Segment, bool) {
	total := s.stream.Len()
	if s.offset >= total {
		return Segment{}, false
	}
	n := total - s.offset
	if n > s.maxSize {
		n = s.maxSize
	}
	seg := Segment{
		Index:  s.index,
		Offset: s.offset,
		Data:   s.stream.buf[s.offset : s.offset+n : s.offset+n],
		Last:   s.offset+n == total,
	}
	s.offset += n
	s.index++
	return seg, true
}

// Remaining counts the segments not yet handed out.
func (s *Segmenter) Remaining() int {
	left := s.stream.Len() - s.offset
	return (left + s.maxSize - 1) / s.maxSize
}

// SegmentCount is ceil((n+1)/m), the number of segments for n payload bytes.
func SegmentCount(n, m int) int {
	return (n + 1 + m - 1) / m
}
