// Package errdefs defines the error classes shared across Drover.
//
// Callers classify failures with errors.Is against the sentinels below;
// call sites attach context with fmt.Errorf("...: %w", err).
package errdefs

import "errors"

var (
	// ErrNotFound indicates a record that was expected to exist has vanished.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a missing or inconsistent pairing between
	// the records of a migration.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidConnector indicates a connector was required but missing
	// or unusable.
	ErrInvalidConnector = errors.New("invalid connector")

	// ErrOverlay indicates a device-mapper primitive command failed.
	ErrOverlay = errors.New("overlay command failed")

	// ErrRemoteCreationFailed indicates the destination volume of a
	// migration ended up in error state on the remote host.
	ErrRemoteCreationFailed = errors.New("remote volume creation failed")

	// ErrRemoteCreationTimeout indicates the destination volume did not
	// become available within the creation deadline.
	ErrRemoteCreationTimeout = errors.New("remote volume creation timed out")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
