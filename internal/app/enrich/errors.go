package enrich

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"

	"gapless/internal/domain/track"
)

// ErrTransient marks failures worth retrying on the same platform before
// falling through to the next one. Platforms attach it with MarkTransient.
var ErrTransient = errors.New("transient network failure")

// MarkTransient marks an error as transient.
func MarkTransient(err error) error {
	return errors.Mark(err, ErrTransient)
}

// IsTransient reports whether an error is worth retrying on the same
// platform. Timeouts of a single attempt count; cancellation of the whole
// enrichment does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Error reports that a stub could not be enriched on any platform.
// Per-track and recoverable: the caller skips the track and continues.
type Error struct {
	Stub   track.Stub
	Reason string
	cause  error
}

func newError(stub track.Stub, reason string, cause error) *Error {
	return &Error{Stub: stub, Reason: reason, cause: cause}
}

func (e *Error) Error() string {
	return "enrichment failed for " + e.Stub.Query() + ": " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.cause
}

func errNoMatch(stub track.Stub) error {
	return errors.Newf("no match found for %q", stub.Query())
}
