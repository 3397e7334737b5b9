// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import "errors"

var (
	// ErrShuttingDown is returned when the quiesce gate is held
	// exclusively by module shutdown.
	ErrShuttingDown = errors.New("bridge is shutting down")

	// ErrHostBusy is a retryable submission failure; the initiator side
	// is expected to back off and resubmit.
	ErrHostBusy = errors.New("host busy")

	ErrSessionUnregistering = errors.New("session is unregistering")
	ErrEventNotSupported    = errors.New("event not supported")

	ErrTargetNotFound      = errors.New("target not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrDuplicateTargetName = errors.New("target name already registered")

	ErrBidirectionalUnsupported = errors.New("engine exposes no bidirectional path")
)
