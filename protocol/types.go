package protocol

const (
	Version uint8 = 1

	// Magic marker "SW" (stop-and-wait), checked on every frame so a
	// desynchronized stream is detected instead of decoded.
	Magic0 uint8 = 0x53
	Magic1 uint8 = 0x57

	FrameHello   uint8 = 0x01
	FrameSegment uint8 = 0x02
	FrameAck     uint8 = 0x03

	FlagNone uint8 = 0
	FlagEnd  uint8 = 1 << 0 // segment carries the sentinel byte

	// HeaderSize: Magic(2) + Version(1) + Type(1) + Flags(1) = 5 bytes
	HeaderSize   = 5
	MaxFrameSize = 16 * 1024 * 1024 // 16MB

	// Sentinel is appended once to the payload to mark its logical end.
	Sentinel byte = 0x00

	DefaultSegmentSize = 1024
	DefaultPort        = 4950
)

// AckCode is the first byte of an AckMessage.
type AckCode uint8

const (
	CodeAck  AckCode = 1
	CodeNack AckCode = 2

	// NackAux is the auxLength emitted with every NACK. Any nonzero value
	// is accepted on read.
	NackAux uint8 = 2

	AckSize = 2
)

func (c AckCode) String() string {
	switch c {
	case CodeAck:
		return "ACK"
	case CodeNack:
		return "NACK"
	default:
		return "UNKNOWN"
	}
}

// IsValidFrameType reports whether frameType is one this protocol speaks.
func IsValidFrameType(frameType uint8) bool {
	switch frameType {
	case FrameHello, FrameSegment, FrameAck:
		return true
	default:
		return false
	}
}

func FrameTypeName(frameType uint8) string {
	switch frameType {
	case FrameHello:
		return "HELLO"
	case FrameSegment:
		return "SEGMENT"
	case FrameAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}
