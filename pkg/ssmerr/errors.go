// Package ssmerr defines the sentinel and typed errors shared across the
// detection core, following the sentinel-plus-typed-struct shape used by
// the teacher SDK's pkg/provider/errors package.
package ssmerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions the core logs-and-returns on rather than
// aborting, per the error taxonomy in the core specification.
var (
	ErrActionMissing      = errors.New("action missing")
	ErrCallUnsupported    = errors.New("call name unsupported for this action")
	ErrPluginVersionOld   = errors.New("plugin is outdated and cannot be loaded")
	ErrPluginVersionNew   = errors.New("plugin requires a core update and cannot be loaded")
	ErrInvalidHeaderType  = errors.New("plugin declares an invalid header_type")
	ErrMD5FormatViolation = errors.New("md5 response not in the expected hex format")
	ErrFramingNotFound    = errors.New("header/trailer framing not found in response")
	ErrWriteWithoutForce  = errors.New("remote file exists or session is blind; refusing overwrite without force")
	ErrNoRemoteMD5        = errors.New("could not obtain remote file md5, check presence and permission")
)

// ChannelError wraps a failure surfaced by the HTTP channel itself. Unlike
// the sentinels above, a ChannelError is propagated rather than swallowed:
// it means the core could not talk to the target at all.
type ChannelError struct {
	URL   string
	Cause error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel request to %s failed: %v", e.URL, e.Cause)
}

func (e *ChannelError) Unwrap() error { return e.Cause }

// IsChannelError reports whether err is (or wraps) a *ChannelError.
func IsChannelError(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce)
}

// NewChannelError builds a ChannelError.
func NewChannelError(url string, cause error) *ChannelError {
	return &ChannelError{URL: url, Cause: cause}
}
