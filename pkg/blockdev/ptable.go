package blockdev

// Partition table type identifiers, kept as named constants for
// interop even though the partition readers themselves (PC MBR, BSD
// disklabel) are out of scope for this module (§6).
const (
	PTableJOSType     = 0x7F
	PTableLinuxType   = 0x83
	PTableFreeBSDType = 0xA5
)
