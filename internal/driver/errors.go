package driver

import (
	"errors"
	"fmt"

	"github.com/camctl/gigecam/internal/pvapi"
)

// ResolutionError means the configured camera identity could not be mapped
// to a device. Non-fatal: the instance stays registered and retries on the
// next link-add event or explicit connect.
type ResolutionError struct {
	CameraID string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve camera %q: %v", e.CameraID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// AccessDeniedError means the camera stayed held by another master for the
// whole retry budget. Non-fatal: the instance remains reconnect-eligible.
type AccessDeniedError struct {
	UniqueID uint32
	Attempts int
	Access   pvapi.AccessFlag
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("no master access to camera %d after %d attempts (access flags %#x)",
		e.UniqueID, e.Attempts, e.Access)
}

// TransportError wraps a vendor open/start/queue failure during connect.
// The connection aborts and the session stays disconnected.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError marks a frame whose pixel format the decoder does not
// support. Per-frame: counted, dropped, the session stays connected.
type DecodeError struct {
	Format pvapi.PixelFormat
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unsupported pixel format %v", e.Format)
}

// AttrFailure records one failed attribute operation inside a batch.
type AttrFailure struct {
	Op   string // "get" or "set"
	Name string
	Err  error
}

func (f AttrFailure) String() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Name, f.Err)
}

// AttributeError aggregates the attribute operations that failed during one
// command or refresh, in the order they failed. The remaining operations in
// the batch still ran.
type AttributeError struct {
	Failures []AttrFailure
}

func (e *AttributeError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("attribute %s", e.Failures[0])
	}
	return fmt.Sprintf("%d attribute operations failed, first: %s", len(e.Failures), e.Failures[0])
}

// attrBatch collects failures across a run of attribute operations without
// aborting the batch.
type attrBatch struct {
	failures []AttrFailure
}

// check records a failed operation. Returns true on success so callers can
// gate dependent work.
func (b *attrBatch) check(op, name string, err error) bool {
	if err == nil {
		return true
	}
	b.failures = append(b.failures, AttrFailure{Op: op, Name: name, Err: err})
	return false
}

// optional records a failure unless the feature is simply absent on this
// hardware variant.
func (b *attrBatch) optional(op, name string, err error) bool {
	if errors.Is(err, pvapi.ErrNotFound) {
		return false
	}
	return b.check(op, name, err)
}

func (b *attrBatch) ok() bool { return len(b.failures) == 0 }

func (b *attrBatch) err() error {
	if len(b.failures) == 0 {
		return nil
	}
	return &AttributeError{Failures: b.failures}
}
