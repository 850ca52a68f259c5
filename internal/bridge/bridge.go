package bridge

import (
	"time"

	"github.com/rs/zerolog"

	"psbridge/internal/device"
	"psbridge/internal/observability"
)

// Exchanger is the serialized command channel the bridge talks through.
type Exchanger interface {
	Exchange(command string) (string, error)
}

// Bridge exposes every device parameter as a synchronous read/write
// operation. Each call blocks for one or more command round trips; no
// value is cached, device truth is re-queried every time. Errors surface
// once to the caller and are never retried.
type Bridge struct {
	ch  Exchanger
	log zerolog.Logger
}

func New(ch Exchanger, logger zerolog.Logger) *Bridge {
	return &Bridge{ch: ch, log: logger}
}

// exchange wraps one round trip with metrics.
func (b *Bridge) exchange(command string) (string, error) {
	start := time.Now()
	reply, err := b.ch.Exchange(command)
	observability.RecordRoundTrip(commandKind(command), err, time.Since(start))
	return reply, err
}

// Status reads the raw 32-bit device status word.
func (b *Bridge) Status() (uint32, error) {
	reply, err := b.exchange(device.CommandStatus())
	if err != nil {
		return 0, err
	}
	return device.ParseStatus(reply)
}

// OutputOn re-derives the output state from status bit 0.
func (b *Bridge) OutputOn() (bool, error) {
	status, err := b.Status()
	if err != nil {
		return false, err
	}
	return device.OutputOn(status), nil
}

// SetOutputOn switches the output on or off.
func (b *Bridge) SetOutputOn(on bool) error {
	b.log.Info().Bool("on", on).Msg("output switch")
	reply, err := b.exchange(device.CommandOutput(on))
	if err != nil {
		return err
	}
	return device.Ack(reply)
}

// ResetLatched reports the reset parameter, which always reads false:
// MRESET is a command, not a state, and no mirror is kept.
func (b *Bridge) ResetLatched() bool {
	return false
}

// Reset issues MRESET when v is true; false is a no-op, which makes
// writes idempotent for object-model clients that write both edges.
func (b *Bridge) Reset(v bool) error {
	if !v {
		return nil
	}
	b.log.Info().Msg("MRESET")
	reply, err := b.exchange(device.CommandReset())
	if err != nil {
		return err
	}
	return device.Ack(reply)
}

// SfpMode reports whether the device echoes SFP update mode.
func (b *Bridge) SfpMode() (bool, error) {
	reply, err := b.exchange(device.CommandQueryMode())
	if err != nil {
		return false, err
	}
	return device.ParseMode(reply)
}

// SetSfpMode selects SFP or NORMAL update mode.
func (b *Bridge) SetSfpMode(sfp bool) error {
	b.log.Info().Bool("sfp", sfp).Msg("update mode switch")
	reply, err := b.exchange(device.CommandMode(sfp))
	if err != nil {
		return err
	}
	return device.Ack(reply)
}

// Current reads the current readback in Amps.
func (b *Bridge) Current() (float64, error) {
	reply, err := b.exchange(device.CommandReadCurrent())
	if err != nil {
		return 0, err
	}
	return device.ParseCurrentReadback(reply)
}

// Voltage reads the voltage readback in Volts.
func (b *Bridge) Voltage() (float64, error) {
	reply, err := b.exchange(device.CommandReadVoltage())
	if err != nil {
		return 0, err
	}
	return device.ParseVoltageReadback(reply)
}

// CurrentSetpoint queries the device-held current setpoint in Amps.
func (b *Bridge) CurrentSetpoint() (float64, error) {
	reply, err := b.exchange(device.CommandQueryCurrentSetpoint())
	if err != nil {
		return 0, err
	}
	return device.ParseCurrentSetpoint(reply)
}

// SetCurrentSetpoint writes a new current setpoint in Amps.
func (b *Bridge) SetCurrentSetpoint(amps float64) error {
	reply, err := b.exchange(device.CommandSetCurrent(amps))
	if err != nil {
		return err
	}
	return device.Ack(reply)
}

// VoltageSetpoint queries the device-held voltage setpoint in Volts.
func (b *Bridge) VoltageSetpoint() (float64, error) {
	reply, err := b.exchange(device.CommandQueryVoltageSetpoint())
	if err != nil {
		return 0, err
	}
	return device.ParseVoltageSetpoint(reply)
}

// SetVoltageSetpoint writes a new voltage setpoint in Volts.
func (b *Bridge) SetVoltageSetpoint(volts float64) error {
	reply, err := b.exchange(device.CommandSetVoltage(volts))
	if err != nil {
		return err
	}
	return device.Ack(reply)
}

// ReadRegister reads one generic register by its device index.
func (b *Bridge) ReadRegister(number uint16) (float64, error) {
	reply, err := b.exchange(device.CommandReadRegister(number))
	if err != nil {
		return 0, err
	}
	return device.ParseRegister(reply)
}

// WriteRegister writes one generic register. Success iff the device
// acknowledges with an "#AK" prefixed reply. Register writes are logged.
func (b *Bridge) WriteRegister(number uint16, value float64) error {
	b.log.Info().Uint16("register", number).Float64("value", value).Msg("register write")
	reply, err := b.exchange(device.CommandWriteRegister(number, value))
	if err != nil {
		return err
	}
	return device.Ack(reply)
}

// commandKind reduces a command line to its metric label.
func commandKind(command string) string {
	for i := 0; i < len(command); i++ {
		switch command[i] {
		case ':', '\r', '\n':
			return command[:i]
		}
	}
	return command
}
