package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Reply prefixes and the fixed offset to each payload field.
const (
	prefixStatus          = "#MST:"
	prefixCurrentReadback = "#MRI:"
	prefixVoltageReadback = "#MRV:"
	prefixCurrentSetpoint = "#MWI:"
	prefixVoltageSetpoint = "#MWV:"
	prefixRegister        = "#MRG:"
	prefixMode            = "#UPMODE:"
	prefixAck             = "#AK"
	prefixNak             = "#NAK"

	registerPayloadOffset = 8
	modePayloadOffset     = 8
)

// sfpModeName is the mode echo payload that identifies SFP operation.
const sfpModeName = "SFP"

// ParseStatus decodes a "#MST:" reply into the 32-bit status word.
// The payload is hexadecimal ASCII.
func ParseStatus(reply string) (uint32, error) {
	payload, err := payloadAfter(reply, prefixStatus, len(prefixStatus))
	if err != nil {
		return 0, err
	}
	status, err := strconv.ParseUint(payload, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad status field %q", ErrMalformedReply, payload)
	}
	return uint32(status), nil
}

// OutputOn reports the output-on bit of a status word.
// The device convention is bit 0: on iff (status & 1) != 0.
func OutputOn(status uint32) bool {
	return status&1 != 0
}

// ParseCurrentReadback decodes a "#MRI:" reply into Amps.
func ParseCurrentReadback(reply string) (float64, error) {
	return parseFloatReply(reply, prefixCurrentReadback, len(prefixCurrentReadback))
}

// ParseVoltageReadback decodes a "#MRV:" reply into Volts.
func ParseVoltageReadback(reply string) (float64, error) {
	return parseFloatReply(reply, prefixVoltageReadback, len(prefixVoltageReadback))
}

// ParseCurrentSetpoint decodes a "#MWI:" setpoint-query reply into Amps.
func ParseCurrentSetpoint(reply string) (float64, error) {
	return parseFloatReply(reply, prefixCurrentSetpoint, len(prefixCurrentSetpoint))
}

// ParseVoltageSetpoint decodes a "#MWV:" setpoint-query reply into Volts.
func ParseVoltageSetpoint(reply string) (float64, error) {
	return parseFloatReply(reply, prefixVoltageSetpoint, len(prefixVoltageSetpoint))
}

// ParseRegister decodes a "#MRG:<n>:<value>" reply into the register value.
// The value field starts at a fixed offset of 8 bytes.
func ParseRegister(reply string) (float64, error) {
	return parseFloatReply(reply, prefixRegister, registerPayloadOffset)
}

// ParseMode decodes a "#UPMODE:" reply and reports whether the device
// echoed SFP mode.
func ParseMode(reply string) (bool, error) {
	payload, err := payloadAfter(reply, prefixMode, modePayloadOffset)
	if err != nil {
		return false, err
	}
	return payload == sfpModeName, nil
}

// Ack verifies an acknowledgement reply. Success is any reply beginning
// with "#AK"; a "#NAK:<code>" reply yields ErrNegativeAck with the code
// preserved, anything else ErrMalformedReply.
func Ack(reply string) error {
	if strings.HasPrefix(reply, prefixAck) {
		return nil
	}
	if strings.HasPrefix(reply, prefixNak) {
		return fmt.Errorf("%w: %s", ErrNegativeAck, strings.TrimSpace(reply))
	}
	return fmt.Errorf("%w: expected acknowledgement, got %q", ErrMalformedReply, reply)
}

// Command line builders. Every command is a single CRLF-terminated ASCII line.

func CommandStatus() string { return "MST\r\n" }

func CommandOutput(on bool) string {
	if on {
		return "MON\r\n"
	}
	return "MOFF\r\n"
}

func CommandReset() string { return "MRESET\r\n" }

func CommandMode(sfp bool) string {
	if sfp {
		return "UPMODE:SFP\r\n"
	}
	return "UPMODE:NORMAL\r\n"
}

func CommandQueryMode() string { return "UPMODE:?\r\n" }

func CommandReadCurrent() string { return "MRI\r\n" }

func CommandReadVoltage() string { return "MRV\r\n" }

func CommandQueryCurrentSetpoint() string { return "MWI:?\r\n" }

func CommandQueryVoltageSetpoint() string { return "MWV:?\r\n" }

// CommandSetCurrent formats a current setpoint write in Amps with six
// decimal places.
func CommandSetCurrent(amps float64) string {
	return "MWI:" + formatSetpoint(amps) + "\r\n"
}

// CommandSetVoltage formats a voltage setpoint write in Volts with six
// decimal places.
func CommandSetVoltage(volts float64) string {
	return "MWV:" + formatSetpoint(volts) + "\r\n"
}

func CommandReadRegister(number uint16) string {
	return fmt.Sprintf("MRG:%d\r\n", number)
}

func CommandWriteRegister(number uint16, value float64) string {
	return fmt.Sprintf("MWG:%d:%s\r\n", number, formatSetpoint(value))
}

func formatSetpoint(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func parseFloatReply(reply, prefix string, offset int) (float64, error) {
	payload, err := payloadAfter(reply, prefix, offset)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad numeric field %q", ErrMalformedReply, payload)
	}
	return v, nil
}

// payloadAfter validates the reply prefix and returns the trimmed payload
// starting at the fixed offset. A "#NAK:<code>" reply is always reported
// as ErrNegativeAck, never as a value.
func payloadAfter(reply, prefix string, offset int) (string, error) {
	if strings.HasPrefix(reply, prefixNak) {
		return "", fmt.Errorf("%w: %s", ErrNegativeAck, strings.TrimSpace(reply))
	}
	if !strings.HasPrefix(reply, prefix) {
		return "", fmt.Errorf("%w: expected prefix %q, got %q", ErrMalformedReply, prefix, reply)
	}
	if len(reply) <= offset {
		return "", fmt.Errorf("%w: truncated reply %q", ErrMalformedReply, reply)
	}
	return strings.TrimSpace(reply[offset:]), nil
}
