package flexcan

import "golang.org/x/sys/unix"

// StandardMask and ExtendedMask bound the legal range of a standard/extended
// CAN identifier, mirroring golang.org/x/sys/unix's socketcan identifier
// masks (unix.CAN_SFF_MASK / unix.CAN_EFF_MASK) rather than redeclaring the
// same constants locally.
const (
	StandardMask = unix.CAN_SFF_MASK
	ExtendedMask = unix.CAN_EFF_MASK
)
