package bitfield

import "fmt"

// BusFault is the payload carried by every synchronous peripheral-bus
// failure. The MMIO base translates it into the matching CPU exception; it
// is never recovered from locally.
type BusFault struct {
	// Kind names the failure for logging and tests.
	Kind string
	// Offset is the byte offset within the owning register set.
	Offset uint32
	// Size is the width in bytes of the access that faulted.
	Size int
	// Write is true for a faulting write, false for a faulting read.
	Write bool
	// Feature is set only for Unimplemented faults.
	Feature string
}

func (f *BusFault) Error() string {
	if f.Feature != "" {
		return fmt.Sprintf("%s: unimplemented feature %q at offset %#x (size %d)", f.Kind, f.Feature, f.Offset, f.Size)
	}
	dir := "read"
	if f.Write {
		dir = "write"
	}
	return fmt.Sprintf("%s: %s fault at offset %#x (size %d)", f.Kind, dir, f.Offset, f.Size)
}

// NewAlignmentFault reports a misaligned or field-spanning access.
func NewAlignmentFault(offset uint32, size int, write bool) error {
	return &BusFault{Kind: "alignment", Offset: offset, Size: size, Write: write}
}

// NewReadFault reports a read of a write-only field or reserved byte range.
func NewReadFault(offset uint32, size int) error {
	return &BusFault{Kind: "bus", Offset: offset, Size: size, Write: false}
}

// NewWriteFault reports a write to a read-only/constant field or reserved
// byte range.
func NewWriteFault(offset uint32, size int) error {
	return &BusFault{Kind: "bus", Offset: offset, Size: size, Write: true}
}

// NewUnimplementedFault reports access to a placeholder field or an
// otherwise unimplemented piece of functionality (unknown DMA request,
// unhandled debug-mode variant).
func NewUnimplementedFault(offset uint32, size int, write bool, feature string) error {
	return &BusFault{Kind: "unimplemented", Offset: offset, Size: size, Write: write, Feature: feature}
}
