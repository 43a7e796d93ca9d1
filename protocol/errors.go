package protocol

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an Error. Every kind is fatal to the session
// that raised it.
type Kind uint8

const (
	KindTransport Kind = iota + 1
	KindProtocol
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ErrorCode is stable across releases and safe to use in logs and tests.
type ErrorCode uint16

const (
	ErrCodeUnknown ErrorCode = 0

	// ====== Transport ======
	ErrCodeIO      ErrorCode = 1001
	ErrCodeTimeout ErrorCode = 1002

	// ====== Protocol ======
	ErrCodeBadAck          ErrorCode = 2001
	ErrCodeBadFrame        ErrorCode = 2002
	ErrCodeInvalidVersion  ErrorCode = 2003
	ErrCodeFrameTooLarge   ErrorCode = 2004
	ErrCodeUnexpectedFrame ErrorCode = 2005
	ErrCodeMissingSentinel ErrorCode = 2006
	ErrCodeBadHello        ErrorCode = 2007
	ErrCodeRejected        ErrorCode = 2008

	// ====== Resource ======
	ErrCodeTooLarge ErrorCode = 3001
)

// Error is the only error type returned by the protocol and arq layers.
type Error struct {
	Kind Kind
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s error (%d)", e.Kind, e.Code)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func NewProtocolError(code ErrorCode, msg string) *Error {
	return &Error{Kind: KindProtocol, Code: code, Msg: msg}
}

func NewResourceError(msg string) *Error {
	return &Error{Kind: KindResource, Code: ErrCodeTooLarge, Msg: msg}
}

// NewTransportError wraps an I/O failure. A nil err yields nil so call
// sites can wrap unconditionally.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	code := ErrCodeIO
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		code = ErrCodeTimeout
	}
	return &Error{Kind: KindTransport, Code: code, Msg: op, Err: err}
}

func asError(err error, kind Kind) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == kind {
		return pe, true
	}
	return nil, false
}

func IsProtocolError(err error) (*Error, bool)  { return asError(err, KindProtocol) }
func IsTransportError(err error) (*Error, bool) { return asError(err, KindTransport) }
func IsResourceError(err error) (*Error, bool)  { return asError(err, KindResource) }
