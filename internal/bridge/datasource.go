package bridge

import (
	"errors"
	"fmt"

	"psbridge/internal/device"
)

var (
	ErrNotWritable = errors.New("bridge: parameter not writable")
	ErrNoData      = errors.New("bridge: no or wrong-typed data")
)

// Value is one typed parameter sample crossing the extension point.
type Value interface{ isValue() }

type Bool bool
type Double float64
type UInt32 uint32

func (Bool) isValue()   {}
func (Double) isValue() {}
func (UInt32) isValue() {}

// Outcome is the tri-state result the object-model layer must be able to
// represent for every attribute access.
type Outcome int

const (
	OutcomeGood Outcome = iota
	OutcomeCommFailure
	OutcomeNoData
)

// OutcomeOf maps a bridge error to the object-model outcome. Timeouts,
// malformed replies and negative acknowledgements are transient
// communication failures on that one access; type mismatches and writes
// to read-only parameters are no-data.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeGood
	case errors.Is(err, ErrNotWritable), errors.Is(err, ErrNoData):
		return OutcomeNoData
	default:
		return OutcomeCommFailure
	}
}

// DataSource is the per-parameter capability handed to the object-model
// layer. Read returns the live value; Write applies one, or fails with
// ErrNotWritable for read-only parameters.
type DataSource struct {
	Read  func() (Value, error)
	Write func(Value) error
}

// Parameter binds a named, described DataSource for node creation.
type Parameter struct {
	Name        string
	Description string
	Source      DataSource
}

// Parameters builds the full parameter set: the fixed device parameters
// followed by one accessor per configured register, in declaration
// order. The register number is bound into each accessor as its opaque
// context.
func (b *Bridge) Parameters(registry *device.Registry) []Parameter {
	params := []Parameter{
		{
			Name:        "OutputOn",
			Description: "power supply output on/off",
			Source: DataSource{
				Read: func() (Value, error) {
					on, err := b.OutputOn()
					return Bool(on), err
				},
				Write: func(v Value) error {
					on, ok := v.(Bool)
					if !ok {
						return fmt.Errorf("%w: OutputOn expects bool", ErrNoData)
					}
					return b.SetOutputOn(bool(on))
				},
			},
		},
		{
			Name:        "DeviceStatus",
			Description: "raw device status word",
			Source: DataSource{
				Read: func() (Value, error) {
					status, err := b.Status()
					return UInt32(status), err
				},
				Write: readOnly("DeviceStatus"),
			},
		},
		{
			Name:        "MReset",
			Description: "reset the module status register",
			Source: DataSource{
				Read: func() (Value, error) {
					return Bool(b.ResetLatched()), nil
				},
				Write: func(v Value) error {
					reset, ok := v.(Bool)
					if !ok {
						return fmt.Errorf("%w: MReset expects bool", ErrNoData)
					}
					return b.Reset(bool(reset))
				},
			},
		},
		{
			Name:        "SfpMode",
			Description: "SFP update mode selection",
			Source: DataSource{
				Read: func() (Value, error) {
					sfp, err := b.SfpMode()
					return Bool(sfp), err
				},
				Write: func(v Value) error {
					sfp, ok := v.(Bool)
					if !ok {
						return fmt.Errorf("%w: SfpMode expects bool", ErrNoData)
					}
					return b.SetSfpMode(bool(sfp))
				},
			},
		},
		{
			Name:        "Current",
			Description: "current readback [A]",
			Source: DataSource{
				Read: func() (Value, error) {
					amps, err := b.Current()
					return Double(amps), err
				},
				Write: readOnly("Current"),
			},
		},
		{
			Name:        "Voltage",
			Description: "voltage readback [V]",
			Source: DataSource{
				Read: func() (Value, error) {
					volts, err := b.Voltage()
					return Double(volts), err
				},
				Write: readOnly("Voltage"),
			},
		},
		{
			Name:        "CurrentSetpoint",
			Description: "current setpoint [A]",
			Source: DataSource{
				Read: func() (Value, error) {
					amps, err := b.CurrentSetpoint()
					return Double(amps), err
				},
				Write: func(v Value) error {
					amps, ok := v.(Double)
					if !ok {
						return fmt.Errorf("%w: CurrentSetpoint expects double", ErrNoData)
					}
					return b.SetCurrentSetpoint(float64(amps))
				},
			},
		},
		{
			Name:        "VoltageSetpoint",
			Description: "voltage setpoint [V]",
			Source: DataSource{
				Read: func() (Value, error) {
					volts, err := b.VoltageSetpoint()
					return Double(volts), err
				},
				Write: func(v Value) error {
					volts, ok := v.(Double)
					if !ok {
						return fmt.Errorf("%w: VoltageSetpoint expects double", ErrNoData)
					}
					return b.SetVoltageSetpoint(float64(volts))
				},
			},
		},
	}

	for _, reg := range registry.Registers() {
		number := reg.Number
		params = append(params, Parameter{
			Name:        reg.Name,
			Description: reg.Description,
			Source: DataSource{
				Read: func() (Value, error) {
					v, err := b.ReadRegister(number)
					return Double(v), err
				},
				Write: func(v Value) error {
					value, ok := v.(Double)
					if !ok {
						return fmt.Errorf("%w: register %d expects double", ErrNoData, number)
					}
					return b.WriteRegister(number, float64(value))
				},
			},
		})
	}

	return params
}

func readOnly(name string) func(Value) error {
	return func(Value) error {
		return fmt.Errorf("%w: %s", ErrNotWritable, name)
	}
}
