// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"context"
	"fmt"
)

// Task management requests block the caller until the engine signals the
// completion, or until the context is cancelled. Cancellation unblocks
// the wait without retracting the request: the engine-side effect still
// completes asynchronously. Each operation counts attempts, not confirmed
// successes.

// AbortTask aborts exactly one outstanding command, keyed by its tag.
func (bridge *Bridge) AbortTask(ctx context.Context, session *Session, tag uint64) error {
	err := bridge.taskManagement(ctx, session, &TaskManagementRequest{
		Function: TaskAbort,
		Tag:      tag,
	})
	bridge.stats.aborts.Add(1)
	return err
}

// DeviceReset quiesces one logical unit.
func (bridge *Bridge) DeviceReset(ctx context.Context, session *Session, lun uint64) error {
	err := bridge.taskManagement(ctx, session, &TaskManagementRequest{
		Function: TaskDeviceReset,
		LUN:      EncodeLUN(lun),
	})
	bridge.stats.deviceResets.Add(1)
	return err
}

// TargetReset quiesces every logical unit exposed through the session.
func (bridge *Bridge) TargetReset(ctx context.Context, session *Session, lun uint64) error {
	err := bridge.taskManagement(ctx, session, &TaskManagementRequest{
		Function: TaskTargetReset,
		LUN:      EncodeLUN(lun),
	})
	bridge.stats.targetResets.Add(1)
	return err
}

func (bridge *Bridge) taskManagement(
	ctx context.Context,
	session *Session,
	request *TaskManagementRequest,
) error {
	if !bridge.gate.tryAcquire() {
		return ErrShuttingDown
	}
	defer bridge.gate.release()

	completion := make(chan struct{})
	request.Priv = completion

	err := bridge.engine.ReceiveTaskManagement(session.engineSession, request)
	if err != nil {
		return fmt.Errorf("task management function %d: %w", request.Function, err)
	}

	// Now wait for the completion ...
	select {
	case <-completion:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// taskManagementDone is the template slot fired by the engine once the
// management function finished.
func (bridge *Bridge) taskManagementDone(request *TaskManagementRequest) {
	if completion, ok := request.Priv.(chan struct{}); ok {
		close(completion)
	}
}
