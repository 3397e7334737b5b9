// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func submitTestSession(t *testing.T, bridgeService *Bridge) *Session {
	t.Helper()
	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	session, err := bridgeService.AddSession(target, "host0")
	require.NoError(t, err)
	return session
}

func TestSubmitReadCompletesWithoutResidual(t *testing.T) {
	payload := []byte("block payload")
	engine := &fakeEngine{
		completeCommand: func(command *EngineCommand) {
			copy(command.InBuffer.Data, payload)
			command.Transferred = command.ExpectedLength
			command.Status = 0x00
		},
	}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	buffer := make([]byte, len(payload))
	var result *Result
	err := bridgeService.SubmitCommand(session, &Command{
		LUN:       0,
		CDB:       []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1, 0},
		Tag:       7,
		TagType:   TagSimple,
		Direction: DataRead,
		InBuffer:  &DataBuffer{Data: buffer, Length: uint32(len(buffer))},
		Done:      func(r *Result) { result = r },
	})
	require.NoError(t, err)

	require.NotNil(t, result)
	require.Equal(t, HostOK, result.HostStatus)
	require.Equal(t, byte(0x00), result.Status)
	require.Equal(t, uint32(0), result.Residual)
	require.True(t, bytes.Equal(payload, buffer))
	require.Equal(t, 1, engine.retiredCount())
}

func TestShortReadReportsResidual(t *testing.T) {
	engine := &fakeEngine{
		completeCommand: func(command *EngineCommand) {
			command.Transferred = 200
			command.Status = 0x00
		},
	}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	var result *Result
	err := bridgeService.SubmitCommand(session, &Command{
		CDB:       []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1, 0},
		Direction: DataRead,
		InBuffer:  &DataBuffer{Data: make([]byte, 512), Length: 512},
		Done:      func(r *Result) { result = r },
	})
	require.NoError(t, err)
	require.Equal(t, uint32(312), result.Residual)
}

func TestNoDataCommandHasZeroResidual(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	var result *Result
	err := bridgeService.SubmitCommand(session, &Command{
		CDB:       []byte{0x00, 0, 0, 0, 0, 0},
		Direction: DataNone,
		Done:      func(r *Result) { result = r },
	})
	require.NoError(t, err)
	require.Equal(t, uint32(0), result.Residual)
	require.Equal(t, HostOK, result.HostStatus)
}

func TestSenseIsCopiedAndCapped(t *testing.T) {
	hugeSense := make([]byte, 200)
	for index := range hugeSense {
		hugeSense[index] = byte(index)
	}
	engine := &fakeEngine{
		completeCommand: func(command *EngineCommand) {
			command.Status = 0x02
			command.Sense = hugeSense
		},
	}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	var result *Result
	err := bridgeService.SubmitCommand(session, &Command{
		CDB:       []byte{0x00, 0, 0, 0, 0, 0},
		Direction: DataNone,
		Done:      func(r *Result) { result = r },
	})
	require.NoError(t, err)
	require.Equal(t, byte(0x02), result.Status)
	require.Len(t, result.Sense, SenseBufferSize)
	require.Equal(t, hugeSense[:SenseBufferSize], result.Sense)

	// The copy must not alias the engine buffer.
	hugeSense[0] = 0xff
	require.Equal(t, byte(0x00), result.Sense[0])
}

func TestSubmitOnUnregisteringSessionReportsBadTarget(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	session.eventMutex.Lock()
	session.unregistering = true
	session.eventMutex.Unlock()

	before := len(engine.callSequence())
	var result *Result
	err := bridgeService.SubmitCommand(session, &Command{
		CDB:       []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1, 0},
		Direction: DataRead,
		InBuffer:  &DataBuffer{Data: make([]byte, 512), Length: 512},
		Done:      func(r *Result) { result = r },
	})
	require.NoError(t, err)
	require.Equal(t, HostBadTarget, result.HostStatus)
	// The engine never saw the command.
	require.Equal(t, before, len(engine.callSequence()))

	session.eventMutex.Lock()
	session.unregistering = false
	session.eventMutex.Unlock()
}

func TestAllocationFailureMapsToHostBusy(t *testing.T) {
	engine := &fakeEngine{newCommandErr: errInjected}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	err := bridgeService.SubmitCommand(session, &Command{
		CDB:       []byte{0x00, 0, 0, 0, 0, 0},
		Direction: DataNone,
		Done:      func(r *Result) { t.Error("completion must not run") },
	})
	require.ErrorIs(t, err, ErrHostBusy)
}

func TestAbortedCommandSkipsInitiatorCompletion(t *testing.T) {
	engine := &fakeEngine{
		completeCommand: func(command *EngineCommand) {
			command.AbortedOnXmit = true
		},
	}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	err := bridgeService.SubmitCommand(session, &Command{
		CDB:       []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1, 0},
		Direction: DataRead,
		InBuffer:  &DataBuffer{Data: make([]byte, 512), Length: 512},
		Done:      func(r *Result) { t.Error("completion must not run") },
	})
	require.NoError(t, err)

	require.Equal(t, 1, engine.retiredCount())
	engine.mutex.Lock()
	delivery := engine.retired[0].DeliveryStatus
	engine.mutex.Unlock()
	require.Equal(t, DeliveryAborted, delivery)
}

func TestBidirectionalRejectedWithoutEngineSupport(t *testing.T) {
	engine := &fakeEngine{bidirectional: false}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	err := bridgeService.SubmitCommand(session, &Command{
		CDB:       []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1, 0},
		Direction: DataBidirectional,
		InBuffer:  &DataBuffer{Data: make([]byte, 512), Length: 512},
		OutBuffer: &DataBuffer{Data: make([]byte, 512), Length: 512},
		Done:      func(r *Result) { t.Error("completion must not run") },
	})
	require.ErrorIs(t, err, ErrBidirectionalUnsupported)
	// The allocated handle is retired even on the rejection path.
	require.Equal(t, 1, engine.retiredCount())
}

func TestQueueTypeMapping(t *testing.T) {
	require.Equal(t, QueueUntagged, queueTypeFor(TagUntagged))
	require.Equal(t, QueueSimple, queueTypeFor(TagSimple))
	require.Equal(t, QueueHeadOfQueue, queueTypeFor(TagHeadOfQueue))
	require.Equal(t, QueueOrdered, queueTypeFor(TagOrdered))
}
