package bitfield

// Register is one addressable, natural-width word of a peripheral's MMIO
// range, built from one or more Fields. It is the unit of access-class
// enforcement: a byte/half/word access to a Register is checked as a whole
// against the composite readability/writability of its fields, then applied
// field-by-field so W1C and Const/RO fields behave correctly even when
// packed alongside RW fields in the same byte (the common case for status
// registers with reserved padding).
type Register struct {
	Name       string
	ByteWidth  int // 1, 2, 4 or 8
	ResetValue uint64
	Fields     []Field

	value uint64
}

// NewRegister builds a Register from its fields. It does not check that the
// fields are disjoint or that they fit within ByteWidth*8 bits.
func NewRegister(name string, byteWidth int, resetValue uint64, fields ...Field) *Register {
	r := &Register{Name: name, ByteWidth: byteWidth, ResetValue: resetValue, Fields: fields}
	r.Reset()
	return r
}

// Reset restores the register to its power-on value.
func (r *Register) Reset() {
	r.value = r.ResetValue
}

// Raw returns the current raw value with no access-class enforcement. Used
// by owning peripheral code (internal reads, status latching) and by the
// MMIO base's origin-bypass path for large debugger-originated accesses.
func (r *Register) Raw() uint64 {
	return r.value
}

// SetRaw overwrites the current value with no access-class enforcement.
// Used by peripheral code to latch shadow state (timestamp capture,
// internally computed status) and by tests to prime pre-conditions.
func (r *Register) SetRaw(v uint64) {
	r.value = v
}

// FieldByName looks up a declared field, returning ok=false if absent.
func (r *Register) FieldByName(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// GetField returns a named field's current value, bypassing access-class
// enforcement (for peripheral-internal decision making).
func (r *Register) GetField(name string) uint64 {
	f, ok := r.FieldByName(name)
	if !ok {
		return 0
	}
	return f.Get(r.value)
}

// PutField sets a named field's value directly, bypassing access-class
// enforcement (used by peripheral code to update status bits as a side
// effect of internal state changes, not of an MMIO write).
func (r *Register) PutField(name string, v uint64) {
	f, ok := r.FieldByName(name)
	if !ok {
		return
	}
	r.value = f.Put(r.value, v)
}

// readable reports whether any non-Const field may be read directly; a
// register composed solely of Const padding and WO fields is considered
// write-only.
func (r *Register) readable() bool {
	if len(r.Fields) == 0 {
		return true
	}
	for _, f := range r.Fields {
		if f.Access != WO && f.Access != Const {
			return true
		}
	}
	return false
}

// writable reports whether any non-Const field may be written directly; a
// register composed solely of RO/Const fields is read-only.
func (r *Register) writable() bool {
	if len(r.Fields) == 0 {
		return true
	}
	for _, f := range r.Fields {
		switch f.Access {
		case RO, Const:
			continue
		default:
			return true
		}
	}
	return false
}

// hasPlaceholder reports whether the register declares any Placeholder
// field, which always faults regardless of direction.
func (r *Register) hasPlaceholder() bool {
	for _, f := range r.Fields {
		if f.Access == Placeholder {
			return true
		}
	}
	return false
}

// Read performs an access-class-checked read of the whole register,
// returning the raw value to be serialized by the caller (RegisterSet,
// which owns endianness).
func (r *Register) Read() (uint64, error) {
	if r.hasPlaceholder() {
		return 0, NewUnimplementedFault(0, r.ByteWidth, false, r.Name)
	}
	if !r.readable() {
		return 0, NewReadFault(0, r.ByteWidth)
	}
	return r.value, nil
}

// Write performs an access-class-checked write of the whole register. It
// applies field semantics: Const/RO bit positions are left untouched, W1C
// bit positions clear only where the incoming value has a 1, and RW/WO bit
// positions are overwritten with the incoming value. Any field-level
// callbacks are the caller's responsibility (RegisterSet dispatches them
// after a successful Write).
func (r *Register) Write(v uint64) error {
	if r.hasPlaceholder() {
		return NewUnimplementedFault(0, r.ByteWidth, true, r.Name)
	}
	if !r.writable() {
		return NewWriteFault(0, r.ByteWidth)
	}
	if len(r.Fields) == 0 {
		r.value = v
		return nil
	}
	next := r.value
	for _, f := range r.Fields {
		switch f.Access {
		case RO, Const:
			// left untouched
		case W1C:
			cur := f.Get(next)
			incoming := f.Get(v)
			next = f.Put(next, cur&^incoming)
		default: // RW, WO
			next = f.Put(next, f.Get(v))
		}
	}
	r.value = next
	return nil
}
