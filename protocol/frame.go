package protocol

import (
	"encoding/binary"
	"io"
)

// Frame is the envelope for every message on the connection. A stream
// transport does not preserve write boundaries, so segments and acks are
// always length-prefixed.
type Frame struct {
	Type    uint8
	Flags   uint8
	Payload []byte
}

func (f *Frame) HasFlag(flag uint8) bool {
	return (f.Flags & flag) != 0
}

// IsEnd reports whether the frame carries the final segment.
func (f *Frame) IsEnd() bool {
	return f.HasFlag(FlagEnd)
}

// Encode writes f as one contiguous buffer so a closed connection cannot
// leave half a header on the wire.
func Encode(w io.Writer, f *Frame) error {
	if !IsValidFrameType(f.Type) {
		return NewProtocolError(ErrCodeBadFrame, "invalid frame type")
	}
	length := HeaderSize + len(f.Payload)
	if length > MaxFrameSize {
		return NewProtocolError(ErrCodeFrameTooLarge, "frame too large")
	}

	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], uint32(length))
	buf[4] = Magic0
	buf[5] = Magic1
	buf[6] = Version
	buf[7] = f.Type
	buf[8] = f.Flags
	copy(buf[4+HeaderSize:], f.Payload)

	if _, err := w.Write(buf); err != nil {
		return NewTransportError("write frame", err)
	}
	return nil
}

// Decode reads one frame, allocating its payload.
func Decode(r io.Reader) (*Frame, error) {
	return DecodeBuffer(r, nil, MaxFrameSize-HeaderSize)
}

// DecodeBuffer reads one frame whose payload may not exceed maxPayload
// bytes. When scratch is large enough the returned payload aliases it and
// is only valid until the next call with the same scratch.
func DecodeBuffer(r io.Reader, scratch []byte, maxPayload int) (*Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, NewTransportError("read frame length", err)
	}
	length := int(binary.BigEndian.Uint32(prefix[:]))

	if length < HeaderSize || length > MaxFrameSize {
		return nil, NewProtocolError(ErrCodeBadFrame, "invalid frame size")
	}
	if length-HeaderSize > maxPayload {
		return nil, NewProtocolError(ErrCodeFrameTooLarge, "frame payload exceeds limit")
	}

	var buf []byte
	if cap(scratch) >= length {
		buf = scratch[:length]
	} else {
		buf = make([]byte, length)
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, NewTransportError("read frame body", err)
	}

	if buf[0] != Magic0 || buf[1] != Magic1 {
		return nil, NewProtocolError(ErrCodeBadFrame, "invalid magic marker")
	}
	if buf[2] != Version {
		return nil, NewProtocolError(ErrCodeInvalidVersion, "invalid protocol version")
	}
	if !IsValidFrameType(buf[3]) {
		return nil, NewProtocolError(ErrCodeBadFrame, "invalid frame type")
	}

	return &Frame{
		Type:    buf[3],
		Flags:   buf[4],
		Payload: buf[HeaderSize:],
	}, nil
}

// Expect checks that f is of the wanted type.
func Expect(f *Frame, frameType uint8) error {
	if f.Type != frameType {
		return NewProtocolError(ErrCodeUnexpectedFrame,
			"expected "+FrameTypeName(frameType)+" frame, got "+FrameTypeName(f.Type))
	}
	return nil
}
