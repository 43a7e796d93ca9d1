package protocol

import (
	"encoding/binary"
	"io"
	"unicode/utf8"
)

// MaxNameLength bounds the file name carried in a hello.
const MaxNameLength = 255

// Hello opens every transfer. The receiver sizes its buffer from
// PayloadSize and rejects segment sizes above its own cap.
type Hello struct {
	MaxSegmentSize uint32
	PayloadSize    uint64
	Name           string
}

// [MaxSegmentSize 4][PayloadSize 8][Name n]
const helloFixed = 4 + 8

func (h *Hello) MarshalBinary() ([]byte, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, helloFixed+len(h.Name))
	binary.BigEndian.PutUint32(buf[0:4], h.MaxSegmentSize)
	binary.BigEndian.PutUint64(buf[4:12], h.PayloadSize)
	copy(buf[helloFixed:], h.Name)
	return buf, nil
}

func (h *Hello) UnmarshalBinary(b []byte) error {
	if len(b) < helloFixed {
		return NewProtocolError(ErrCodeBadHello, "hello too short")
	}
	h.MaxSegmentSize = binary.BigEndian.Uint32(b[0:4])
	h.PayloadSize = binary.BigEndian.Uint64(b[4:12])
	h.Name = string(b[helloFixed:])
	return h.validate()
}

func (h *Hello) validate() error {
	if h.MaxSegmentSize == 0 {
		return NewProtocolError(ErrCodeBadHello, "segment size must be positive")
	}
	if len(h.Name) > MaxNameLength {
		return NewProtocolError(ErrCodeBadHello, "name too long")
	}
	if !utf8.ValidString(h.Name) {
		return NewProtocolError(ErrCodeBadHello, "name is not valid UTF-8")
	}
	return nil
}

func WriteHello(w io.Writer, h *Hello) error {
	payload, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	return Encode(w, &Frame{Type: FrameHello, Payload: payload})
}

func ReadHello(r io.Reader) (*Hello, error) {
	f, err := DecodeBuffer(r, nil, helloFixed+MaxNameLength)
	if err != nil {
		return nil, err
	}
	if err := Expect(f, FrameHello); err != nil {
		return nil, err
	}
	h := new(Hello)
	if err := h.UnmarshalBinary(f.Payload); err != nil {
		return nil, err
	}
	return h, nil
}

// Handshake sends h and waits for the peer's verdict. A NACK means the
// peer refused the transfer.
func Handshake(rw io.ReadWriter, h *Hello) error {
	if err := WriteHello(rw, h); err != nil {
		return err
	}
	ack, err := ReadAck(rw)
	if err != nil {
		return err
	}
	if ack.IsNack() {
		return NewProtocolError(ErrCodeRejected, "transfer rejected by peer")
	}
	return nil
}
