package device

import "fmt"

// DefaultMaxRegisters bounds the configured register table.
const DefaultMaxRegisters = 40

// Register is one configured generic device register. The number is an
// opaque device-defined index used as context at read/write time.
type Register struct {
	Number      uint16
	Name        string
	Description string
}

// Registry is the immutable register table built once at startup.
type Registry struct {
	regs   []Register
	byName map[string]Register
}

// NewRegistry validates and freezes the configured register list.
// Names must be unique and non-empty, and the count must not exceed max
// (DefaultMaxRegisters when max <= 0). A violation is fatal to startup.
func NewRegistry(regs []Register, max int) (*Registry, error) {
	if max <= 0 {
		max = DefaultMaxRegisters
	}
	if len(regs) > max {
		return nil, fmt.Errorf("%w: %d configured, maximum %d", ErrTooManyRegisters, len(regs), max)
	}

	byName := make(map[string]Register, len(regs))
	frozen := make([]Register, len(regs))
	for i, reg := range regs {
		if reg.Name == "" {
			return nil, fmt.Errorf("%w: register[%d] missing name", ErrInvalidRegister, i)
		}
		if _, ok := byName[reg.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRegister, reg.Name)
		}
		byName[reg.Name] = reg
		frozen[i] = reg
	}

	return &Registry{regs: frozen, byName: byName}, nil
}

// Len returns the number of configured registers.
func (r *Registry) Len() int {
	return len(r.regs)
}

// Registers returns the configured registers in declaration order.
func (r *Registry) Registers() []Register {
	out := make([]Register, len(r.regs))
	copy(out, r.regs)
	return out
}

// Lookup resolves a register by its configured name.
func (r *Registry) Lookup(name string) (Register, bool) {
	reg, ok := r.byName[name]
	return reg, ok
}
