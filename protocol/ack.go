package protocol

import (
	"fmt"
	"io"
)

// AckMessage is the entire control vocabulary: ACK(1,0) or NACK(2,nonzero).
type AckMessage struct {
	Code      AckCode
	AuxLength uint8
}

var (
	Ack  = AckMessage{Code: CodeAck, AuxLength: 0}
	Nack = AckMessage{Code: CodeNack, AuxLength: NackAux}
)

func (a AckMessage) IsAck() bool {
	return a.Code == CodeAck && a.AuxLength == 0
}

func (a AckMessage) IsNack() bool {
	return a.Code == CodeNack && a.AuxLength != 0
}

// Validate rejects every combination outside {ACK(1,0), NACK(2,nonzero)}.
func (a AckMessage) Validate() error {
	if a.IsAck() || a.IsNack() {
		return nil
	}
	return NewProtocolError(ErrCodeBadAck,
		fmt.Sprintf("malformed ack (code=%d, aux=%d)", a.Code, a.AuxLength))
}

func (a AckMessage) Bytes() []byte {
	return []byte{byte(a.Code), a.AuxLength}
}

func (a AckMessage) String() string {
	return fmt.Sprintf("%s(%d,%d)", a.Code, a.Code, a.AuxLength)
}

// ParseAck decodes a 2-byte ack payload and validates it.
func ParseAck(b []byte) (AckMessage, error) {
	if len(b) != AckSize {
		return AckMessage{}, NewProtocolError(ErrCodeBadAck,
			fmt.Sprintf("ack payload is %d bytes, want %d", len(b), AckSize))
	}
	a := AckMessage{Code: AckCode(b[0]), AuxLength: b[1]}
	return a, a.Validate()
}

// WriteAck sends a inside an ack frame.
func WriteAck(w io.Writer, a AckMessage) error {
	return Encode(w, &Frame{Type: FrameAck, Payload: a.Bytes()})
}

// ReadAck blocks until the next ack frame arrives. A malformed ack is
// returned alongside a ProtocolError so callers can log what was received.
func ReadAck(r io.Reader) (AckMessage, error) {
	var scratch [4 + HeaderSize + AckSize]byte
	f, err := DecodeBuffer(r, scratch[:], AckSize)
	if err != nil {
		return AckMessage{}, err
	}
	if err := Expect(f, FrameAck); err != nil {
		return AckMessage{}, err
	}
	return ParseAck(f.Payload)
}
