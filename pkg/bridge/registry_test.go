// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"scsibridge/pkg/initiator"
)

func TestAddTargetRejectsDuplicateName(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	_, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	_, err = bridgeService.AddTarget("tgt0")
	require.ErrorIs(t, err, ErrDuplicateTargetName)
}

func TestAddTargetEngineFailurePropagates(t *testing.T) {
	engine := &fakeEngine{registerTargetErr: errInjected}
	bridgeService := newTestBridge(t, engine)

	_, err := bridgeService.AddTarget("tgt0")
	require.ErrorIs(t, err, errInjected)
	_, err = bridgeService.FindTarget("tgt0")
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestAddSessionPublishFailureUnwindsEngineRegistration(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)
	bridgeService.publish = func(session *Session) (*initiator.Adapter, error) {
		return nil, errInjected
	}

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	_, err = bridgeService.AddSession(target, "host0")
	require.ErrorIs(t, err, errInjected)

	engine.mutex.Lock()
	registered, unregistered := engine.registeredSessions, engine.unregisteredCount
	engine.mutex.Unlock()
	require.Equal(t, 1, registered)
	require.Equal(t, 1, unregistered)

	_, err = bridgeService.FindSession("tgt0", "host0")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAddSessionRescansWhenTargetHasUnits(t *testing.T) {
	engine := &fakeEngine{hasUnits: true}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	session, err := bridgeService.AddSession(target, "host0")
	require.NoError(t, err)
	require.Equal(t, uint64(1), session.Adapter().RescanCount())
}

func TestRemoveSessionIsIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	session, err := bridgeService.AddSession(target, "host0")
	require.NoError(t, err)
	adapter := session.Adapter()

	require.NoError(t, bridgeService.RemoveSession(session, false))
	require.NoError(t, bridgeService.RemoveSession(session, false))

	require.True(t, adapter.Closed())
	require.Nil(t, session.Adapter())
	engine.mutex.Lock()
	unregistered := engine.unregisteredCount
	engine.mutex.Unlock()
	require.Equal(t, 1, unregistered)
}

func TestRemoveSessionAsyncRunsOnWorker(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	session, err := bridgeService.AddSession(target, "host0")
	require.NoError(t, err)
	adapter := session.Adapter()

	require.NoError(t, bridgeService.RemoveSession(session, true))
	bridgeService.removeQueue.Flush()

	require.True(t, adapter.Closed())
	_, err = bridgeService.FindSession("tgt0", "host0")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRemoveTargetTearsDownSessionsFirst(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	_, err = bridgeService.AddSession(target, "host0")
	require.NoError(t, err)
	_, err = bridgeService.AddSession(target, "host1")
	require.NoError(t, err)

	require.NoError(t, bridgeService.RemoveTarget("tgt0"))

	calls := engine.callSequence()
	targetUnregisterIndex := -1
	lastSessionUnregisterIndex := -1
	for index, call := range calls {
		switch call {
		case "UnregisterTarget:tgt0":
			targetUnregisterIndex = index
		case "UnregisterSession:host0", "UnregisterSession:host1":
			lastSessionUnregisterIndex = index
		}
	}
	require.GreaterOrEqual(t, lastSessionUnregisterIndex, 0)
	require.Greater(t, targetUnregisterIndex, lastSessionUnregisterIndex)

	require.ErrorIs(t, bridgeService.RemoveTarget("tgt0"), ErrTargetNotFound)
}

func TestListSnapshotsRegistry(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	_, err = bridgeService.AddSession(target, "host0")
	require.NoError(t, err)

	views := bridgeService.List()
	require.Len(t, views, 1)
	require.Equal(t, "tgt0", views[0].Name)
	require.Equal(t, uint16(0x0BE0), views[0].ScsiTransportVersion)
	require.Len(t, views[0].Sessions, 1)
	require.Equal(t, "host0", views[0].Sessions[0].InitiatorName)
	require.False(t, views[0].Sessions[0].Unregistering)
}

func TestManagementScenario(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	session, err := bridgeService.AddSession(target, "host0")
	require.NoError(t, err)

	found, err := bridgeService.FindSession("tgt0", "host0")
	require.NoError(t, err)
	require.Same(t, session, found)

	require.NoError(t, bridgeService.RemoveSession(session, false))
	require.NoError(t, bridgeService.RemoveTarget("tgt0"))
	_, err = bridgeService.FindTarget("tgt0")
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestShutdownRefusesNewOperations(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	session, err := bridgeService.AddSession(target, "host0")
	require.NoError(t, err)
	adapter := session.Adapter()

	bridgeService.Shutdown()

	_, err = bridgeService.AddTarget("tgt1")
	require.ErrorIs(t, err, ErrShuttingDown)
	_, err = bridgeService.AddSession(target, "host1")
	require.ErrorIs(t, err, ErrShuttingDown)
	require.ErrorIs(t, bridgeService.RemoveSession(session, false), ErrShuttingDown)
	require.ErrorIs(t, bridgeService.SubmitCommand(session, &Command{
		CDB:  []byte{0x00},
		Done: func(result *Result) {},
	}), ErrShuttingDown)

	// Shutdown already removed everything.
	require.True(t, adapter.Closed())
	require.Empty(t, bridgeService.List())
}

func TestConcurrentSessionChurn(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)

	const workers = 8
	const rounds = 25
	var group sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		group.Add(1)
		go func(worker int) {
			defer group.Done()
			for round := 0; round < rounds; round++ {
				name := fmt.Sprintf("host_%d_%d", worker, round)
				session, err := bridgeService.AddSession(target, name)
				if err != nil {
					if errors.Is(err, ErrShuttingDown) {
						return
					}
					t.Errorf("add session %s: %v", name, err)
					return
				}
				if err := bridgeService.RemoveSession(session, round%2 == 0); err != nil &&
					!errors.Is(err, ErrShuttingDown) {
					t.Errorf("remove session %s: %v", name, err)
					return
				}
			}
		}(worker)
	}
	group.Wait()
	bridgeService.removeQueue.Flush()

	views := bridgeService.List()
	require.Len(t, views, 1)
	require.Empty(t, views[0].Sessions)
}
