package scan

import "errors"

var (
	// ErrInvalidTarget rejects empty targets or ones failing the basic
	// address/hostname syntax check. Never retried.
	ErrInvalidTarget = errors.New("invalid scan target")

	// ErrInvalidScanType rejects scan types outside the known set.
	ErrInvalidScanType = errors.New("invalid scan type")

	// ErrScanAlreadyRunning is returned when the target already has a
	// non-terminal session. Surfaced to the caller, not queued silently.
	ErrScanAlreadyRunning = errors.New("scan already running for target")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("scan session not found")
)
