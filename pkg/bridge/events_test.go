// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventDispatchAcksExactlyOnceAndRescans(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)
	adapter := session.Adapter()

	var acks atomic.Int32
	event := NewAsyncEvent(EventUnitAttention, 0, func() { acks.Add(1) })
	require.NoError(t, engine.template.ReportEvent(session.engineSession, event))
	bridgeService.aenQueue.Flush()

	require.Equal(t, int32(1), acks.Load())
	require.Equal(t, uint64(1), adapter.RescanCount())
}

func TestEventsDrainInOrder(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)

	var order []uint64
	for lun := uint64(0); lun < 3; lun++ {
		lun := lun
		event := NewAsyncEvent(EventUnitAttention, lun, func() {
			order = append(order, lun)
		})
		require.NoError(t, engine.template.ReportEvent(session.engineSession, event))
	}
	bridgeService.aenQueue.Flush()
	require.Equal(t, []uint64{0, 1, 2}, order)
}

func TestUnsupportedEventKindRejected(t *testing.T) {
	engine := &fakeEngine{}
	session := submitTestSession(t, newTestBridge(t, engine))

	event := NewAsyncEvent(EventUnknown, 0, nil)
	err := engine.template.ReportEvent(session.engineSession, event)
	require.ErrorIs(t, err, ErrEventNotSupported)
}

func TestEventOnUnregisteringSessionRejected(t *testing.T) {
	engine := &fakeEngine{}
	session := submitTestSession(t, newTestBridge(t, engine))

	session.eventMutex.Lock()
	session.unregistering = true
	session.eventMutex.Unlock()

	event := NewAsyncEvent(EventUnitAttention, 0, nil)
	err := engine.template.ReportEvent(session.engineSession, event)
	require.ErrorIs(t, err, ErrSessionUnregistering)

	session.eventMutex.Lock()
	session.unregistering = false
	session.eventMutex.Unlock()
}

func TestWorkerScheduledBeforeTeardownDiscardsEvents(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)
	adapter := session.Adapter()

	// Hold the event worker so the dispatch scheduled below stays pending
	// while the removal flag goes up.
	started := make(chan struct{})
	release := make(chan struct{})
	bridgeService.aenQueue.Queue(func() {
		close(started)
		<-release
	})
	<-started

	var acks atomic.Int32
	event := NewAsyncEvent(EventUnitAttention, 0, func() { acks.Add(1) })
	require.NoError(t, engine.template.ReportEvent(session.engineSession, event))

	session.eventMutex.Lock()
	session.unregistering = true
	session.eventMutex.Unlock()

	close(release)
	bridgeService.aenQueue.Flush()

	require.Equal(t, int32(1), acks.Load())
	require.Equal(t, uint64(0), adapter.RescanCount())

	session.eventMutex.Lock()
	session.unregistering = false
	session.eventMutex.Unlock()
	require.NoError(t, bridgeService.RemoveSession(session, false))
	require.True(t, adapter.Closed())
}

func TestTeardownAcksPendingEventsWithoutRescan(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)
	adapter := session.Adapter()

	var acks atomic.Int32
	session.eventMutex.Lock()
	for i := 0; i < 2; i++ {
		session.eventQueue = append(session.eventQueue,
			NewAsyncEvent(EventUnitAttention, uint64(i), func() { acks.Add(1) }))
	}
	session.eventMutex.Unlock()

	require.NoError(t, bridgeService.RemoveSession(session, false))

	require.Equal(t, int32(2), acks.Load())
	require.Equal(t, uint64(0), adapter.RescanCount())
	require.True(t, adapter.Closed())
}

func TestShutdownDiscardsPendingEventsForAllSessions(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)

	target, err := bridgeService.AddTarget("tgt0")
	require.NoError(t, err)
	first, err := bridgeService.AddSession(target, "host0")
	require.NoError(t, err)
	second, err := bridgeService.AddSession(target, "host1")
	require.NoError(t, err)

	var acks atomic.Int32
	for _, session := range []*Session{first, second} {
		session.eventMutex.Lock()
		session.eventQueue = append(session.eventQueue,
			NewAsyncEvent(EventUnitAttention, 0, func() { acks.Add(1) }))
		session.eventMutex.Unlock()
	}
	firstAdapter := first.Adapter()
	secondAdapter := second.Adapter()

	bridgeService.Shutdown()

	require.Equal(t, int32(2), acks.Load())
	require.Equal(t, uint64(0), firstAdapter.RescanCount())
	require.Equal(t, uint64(0), secondAdapter.RescanCount())
	require.True(t, firstAdapter.Closed())
	require.True(t, secondAdapter.Closed())
}

func TestEngineInitiatedCloseTearsDownSession(t *testing.T) {
	engine := &fakeEngine{}
	bridgeService := newTestBridge(t, engine)
	session := submitTestSession(t, bridgeService)
	adapter := session.Adapter()

	engine.template.CloseSession(session.engineSession)
	bridgeService.removeQueue.Flush()

	require.True(t, adapter.Closed())
	_, err := bridgeService.FindSession("tgt0", "host0")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
