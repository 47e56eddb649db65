// Package latency provides the per-unit capability latency table used to
// time functional units.
//
// Each unit supports a set of capabilities, each with its own latency. An
// instruction can run on a unit of its class that supports its capability.
package latency

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/config"
)

// Unit is the static description of one functional unit.
type Unit struct {
	Name  string
	Class insts.UnitClass
	// Latencies holds the latency per capability; 0 means unsupported.
	Latencies [insts.NumCapabilities]uint64
}

// Supports reports whether the unit can execute def.
func (u *Unit) Supports(def *insts.Definition) bool {
	if def == nil || u.Class != def.Class {
		return false
	}
	return u.Latencies[def.Capability] > 0
}

// Table provides instruction latency lookups.
type Table struct {
	units []Unit
}

// NewTable builds the table from the configured units.
func NewTable(units []config.UnitConfig) (*Table, error) {
	t := &Table{units: make([]Unit, 0, len(units))}
	for _, uc := range units {
		class, ok := insts.ParseUnitClass(uc.Class)
		if !ok {
			return nil, errors.Wrapf(config.ErrInvalidConfig, "unit %s: unknown class %q", uc.Name, uc.Class)
		}
		u := Unit{Name: uc.Name, Class: class}
		for _, c := range uc.Capabilities {
			cp, ok := insts.ParseCapability(c.Name)
			if !ok {
				return nil, errors.Wrapf(config.ErrInvalidConfig, "unit %s: unknown capability %q", uc.Name, c.Name)
			}
			u.Latencies[cp] = c.Latency
		}
		t.units = append(t.units, u)
	}
	return t, nil
}

// Units returns the units in configuration order.
func (t *Table) Units() []Unit {
	return t.units
}

// Unit returns the unit at index i.
func (t *Table) Unit(i int) *Unit {
	return &t.units[i]
}

// Latency returns the cycles unit i needs for def, or false if the unit
// cannot execute it.
func (t *Table) Latency(i int, def *insts.Definition) (uint64, bool) {
	u := &t.units[i]
	if !u.Supports(def) {
		return 0, false
	}
	return u.Latencies[def.Capability], true
}

// MinLatency returns the fastest latency over all units able to run def.
func (t *Table) MinLatency(def *insts.Definition) (uint64, bool) {
	var best uint64
	found := false
	for i := range t.units {
		if l, ok := t.Latency(i, def); ok && (!found || l < best) {
			best, found = l, true
		}
	}
	return best, found
}

// MaxLatency returns the slowest latency over all units able to run def.
func (t *Table) MaxLatency(def *insts.Definition) (uint64, bool) {
	var worst uint64
	found := false
	for i := range t.units {
		if l, ok := t.Latency(i, def); ok && l > worst {
			worst, found = l, true
		}
	}
	return worst, found
}

// CheckProgram verifies that every instruction of prog can be executed by
// some unit, so no instruction waits forever in its issue window.
func (t *Table) CheckProgram(prog *insts.Program) error {
	for _, inst := range prog.Code {
		if _, ok := t.MinLatency(inst.Def); !ok {
			return errors.Wrapf(config.ErrInvalidConfig,
				"line %d: no unit of class %s supports %s (%s)",
				inst.Line, inst.Def.Class, inst.Def.Capability, inst.Def.Name)
		}
	}
	return nil
}
