package logger

import (
	"fmt"
	"log/slog"
)

// ============================================================================
// Distributed Tracing
// ============================================================================

const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"
)

func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }
func SpanID(id string) slog.Attr  { return slog.String(KeySpanID, id) }

// ============================================================================
// Engine Operation
// ============================================================================

const (
	KeyOperation  = "operation"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyEngineName = "engine"
)

func Operation(op string) slog.Attr   { return slog.String(KeyOperation, op) }
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
func ErrorCode(code string) slog.Attr  { return slog.String(KeyErrorCode, code) }
func EngineName(name string) slog.Attr { return slog.String(KeyEngineName, name) }

// ============================================================================
// Block Descriptor
// ============================================================================

const (
	KeyBlockNumber = "block"
	KeyBlockLength = "block_length"
	KeyRefCount    = "refcount"
	KeySynthetic   = "synthetic"
	KeyInFlight    = "in_flight"
)

func BlockNumber(n uint64) slog.Attr { return slog.Uint64(KeyBlockNumber, n) }
func BlockLength(n int) slog.Attr    { return slog.Int(KeyBlockLength, n) }
func RefCount(n int) slog.Attr       { return slog.Int(KeyRefCount, n) }
func Synthetic(b bool) slog.Attr     { return slog.Bool(KeySynthetic, b) }
func InFlight(b bool) slog.Attr      { return slog.Bool(KeyInFlight, b) }

// ============================================================================
// Patch
// ============================================================================

const (
	KeyPatchID      = "patch_id"
	KeyPatchType    = "patch_type"
	KeyPatchFlags   = "patch_flags"
	KeyPatchOffset  = "patch_offset"
	KeyPatchLength  = "patch_length"
	KeyLevel        = "level"
	KeyBeforeCount  = "before_count"
	KeyAfterCount   = "after_count"
	KeyWeakRefCount = "weak_ref_count"
)

func PatchID(id uint64) slog.Attr { return slog.Uint64(KeyPatchID, id) }
func PatchType(t string) slog.Attr { return slog.String(KeyPatchType, t) }
func PatchFlags(flags uint32) slog.Attr {
	return slog.String(KeyPatchFlags, fmt.Sprintf("0x%x", flags))
}
func PatchOffset(n uint16) slog.Attr { return slog.Int(KeyPatchOffset, int(n)) }
func PatchLength(n uint16) slog.Attr { return slog.Int(KeyPatchLength, int(n)) }
func PatchLevel(n int) slog.Attr     { return slog.Int(KeyLevel, n) }
func BeforeCount(n int) slog.Attr    { return slog.Int(KeyBeforeCount, n) }
func AfterCount(n int) slog.Attr     { return slog.Int(KeyAfterCount, n) }
func WeakRefCount(n int) slog.Attr   { return slog.Int(KeyWeakRefCount, n) }

// ============================================================================
// Revision Tail
// ============================================================================

const (
	KeyRollbackCount = "rollback_count"
	KeyLandingID     = "landing_id"
	KeyFlightCount   = "flight_count"
)

func RollbackCount(n int) slog.Attr { return slog.Int(KeyRollbackCount, n) }
func LandingID(id uint64) slog.Attr { return slog.Uint64(KeyLandingID, id) }
func FlightCount(n int) slog.Attr   { return slog.Int(KeyFlightCount, n) }

// ============================================================================
// Revision Slice
// ============================================================================

const (
	KeySliceSize = "slice_size"
	KeyAllReady  = "all_ready"
)

func SliceSize(n int) slog.Attr { return slog.Int(KeySliceSize, n) }
func AllReady(b bool) slog.Attr { return slog.Bool(KeyAllReady, b) }

// ============================================================================
// Write-Back Cache
// ============================================================================

const (
	KeyFlushStrategy = "flush_strategy"
	KeyDirtyBlocks   = "dirty_blocks"
	KeySoftBlocks    = "soft_blocks"
	KeySoftDBlocks   = "soft_dblocks"
	KeyFlushResult   = "flush_result"
	KeyEvicted       = "evicted"
)

func FlushStrategy(s string) slog.Attr { return slog.String(KeyFlushStrategy, s) }
func DirtyBlocks(n int) slog.Attr      { return slog.Int(KeyDirtyBlocks, n) }
func SoftBlocks(n int) slog.Attr       { return slog.Int(KeySoftBlocks, n) }
func SoftDBlocks(n int) slog.Attr      { return slog.Int(KeySoftDBlocks, n) }
func FlushResult(s string) slog.Attr   { return slog.String(KeyFlushResult, s) }
func Evicted(n int) slog.Attr          { return slog.Int(KeyEvicted, n) }

// ============================================================================
// Patchgroup
// ============================================================================

const (
	KeyPatchgroupID    = "patchgroup_id"
	KeyPatchgroupLabel = "patchgroup_label"
	KeyEngaged         = "engaged"
	KeyAtomic          = "atomic"
)

func PatchgroupID(id uint32) slog.Attr   { return slog.Uint64(KeyPatchgroupID, uint64(id)) }
func PatchgroupLabel(s string) slog.Attr { return slog.String(KeyPatchgroupLabel, s) }
func Engaged(b bool) slog.Attr           { return slog.Bool(KeyEngaged, b) }
func Atomic(b bool) slog.Attr            { return slog.Bool(KeyAtomic, b) }
