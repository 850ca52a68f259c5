package udpwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// ControlMagic is the signature word of every control packet.
	ControlMagic uint32 = 0x4C556543

	// ControlSize is the exact control packet length in bytes.
	ControlSize = 24

	// ResponseSize is the exact response payload length in bytes.
	ResponseSize = 36
)

var (
	ErrPacketLength = errors.New("udpwire: wrong packet length")
	ErrBadMagic     = errors.New("udpwire: bad control magic")
)

// ControlPacket is one inbound setpoint request. Setpoints are integers
// in micro-units (µA, µV); set=0 means the setpoints are not applied.
// Payload fields are in the device's native little-endian order.
type ControlPacket struct {
	Magic           uint32
	Set             uint32
	CurrentSetpoint int64
	VoltageSetpoint int64
}

// ResponsePacket is the unconditional reply carrying the device status
// word, both setpoints and both readbacks in micro-units.
type ResponsePacket struct {
	Status          uint32
	CurrentSetpoint int64
	VoltageSetpoint int64
	CurrentReadback int64
	VoltageReadback int64
}

// DecodeControl validates and decodes one inbound datagram. Wrong length
// or wrong magic is an error; callers drop such datagrams silently, the
// protocol defines no error reply.
func DecodeControl(b []byte) (ControlPacket, error) {
	if len(b) != ControlSize {
		return ControlPacket{}, fmt.Errorf("%w: got %d bytes, want %d", ErrPacketLength, len(b), ControlSize)
	}
	p := ControlPacket{
		Magic:           binary.LittleEndian.Uint32(b[0:4]),
		Set:             binary.LittleEndian.Uint32(b[4:8]),
		CurrentSetpoint: int64(binary.LittleEndian.Uint64(b[8:16])),
		VoltageSetpoint: int64(binary.LittleEndian.Uint64(b[16:24])),
	}
	if p.Magic != ControlMagic {
		return ControlPacket{}, fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrBadMagic, p.Magic, ControlMagic)
	}
	return p, nil
}

// EncodeControl builds one outbound control datagram. Used by the client
// and by tests.
func EncodeControl(p ControlPacket) []byte {
	b := make([]byte, ControlSize)
	binary.LittleEndian.PutUint32(b[0:4], p.Magic)
	binary.LittleEndian.PutUint32(b[4:8], p.Set)
	binary.LittleEndian.PutUint64(b[8:16], uint64(p.CurrentSetpoint))
	binary.LittleEndian.PutUint64(b[16:24], uint64(p.VoltageSetpoint))
	return b
}

// EncodeResponse serializes the 36-byte response payload.
func EncodeResponse(p ResponsePacket) []byte {
	b := make([]byte, ResponseSize)
	binary.LittleEndian.PutUint32(b[0:4], p.Status)
	binary.LittleEndian.PutUint64(b[4:12], uint64(p.CurrentSetpoint))
	binary.LittleEndian.PutUint64(b[12:20], uint64(p.VoltageSetpoint))
	binary.LittleEndian.PutUint64(b[20:28], uint64(p.CurrentReadback))
	binary.LittleEndian.PutUint64(b[28:36], uint64(p.VoltageReadback))
	return b
}

// DecodeResponse parses a 36-byte response payload.
func DecodeResponse(b []byte) (ResponsePacket, error) {
	if len(b) != ResponseSize {
		return ResponsePacket{}, fmt.Errorf("%w: got %d bytes, want %d", ErrPacketLength, len(b), ResponseSize)
	}
	return ResponsePacket{
		Status:          binary.LittleEndian.Uint32(b[0:4]),
		CurrentSetpoint: int64(binary.LittleEndian.Uint64(b[4:12])),
		VoltageSetpoint: int64(binary.LittleEndian.Uint64(b[12:20])),
		CurrentReadback: int64(binary.LittleEndian.Uint64(b[20:28])),
		VoltageReadback: int64(binary.LittleEndian.Uint64(b[28:36])),
	}, nil
}

// Micro converts a native-unit double (Amps, Volts) to a micro-unit wire
// integer by round-to-nearest. Exact for |v| within 1e12 micro-units.
func Micro(native float64) int64 {
	return int64(math.Round(1e6 * native))
}

// Native converts a micro-unit wire integer back to native units.
func Native(micro int64) float64 {
	return 1e-6 * float64(micro)
}
