package device

import "errors"

var (
	ErrTimeout        = errors.New("device: communication timeout")
	ErrPartialSend    = errors.New("device: partial send")
	ErrMalformedReply = errors.New("device: malformed reply")
	ErrNegativeAck    = errors.New("device: negative acknowledgement")
	ErrClosed         = errors.New("device: channel closed")

	ErrTooManyRegisters  = errors.New("device: too many registers")
	ErrDuplicateRegister = errors.New("device: duplicate register name")
	ErrInvalidRegister   = errors.New("device: invalid register entry")
)
