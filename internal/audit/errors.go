package audit

import "errors"

// Sentinel errors for the audit recorder.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, audit.ErrDisabled) {
//	    // Run without auditing
//	}
var (
	// ErrNotConnected indicates the recorder is not connected to InfluxDB.
	ErrNotConnected = errors.New("audit: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("audit: connection failed")

	// ErrDisabled indicates the audit recorder is disabled in config.
	ErrDisabled = errors.New("audit: disabled in configuration")
)
