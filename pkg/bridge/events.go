// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import "scsibridge/pkg/logger"

// reportEvent is the template slot the engine invokes for asynchronous
// events. The event is queued on the owning session and drained FIFO by
// a single worker invocation; an unregistering session rejects upfront so
// the engine retires the event itself.
func (bridge *Bridge) reportEvent(engineSession EngineSession, event *AsyncEvent) error {
	log := logger.GetLogger()
	session, ok := engineSession.Priv().(*Session)
	if !ok {
		return ErrEventNotSupported
	}
	if event.Kind != EventUnitAttention {
		log.Debugf("unsupported async event kind %d", event.Kind)
		return ErrEventNotSupported
	}

	session.eventMutex.Lock()
	if session.unregistering {
		session.eventMutex.Unlock()
		return ErrSessionUnregistering
	}
	session.eventQueue = append(session.eventQueue, event)
	if !session.workScheduled {
		session.workScheduled = true
		bridge.aenQueue.Queue(func() {
			session.processEvents(false)
		})
	}
	session.eventMutex.Unlock()
	return nil
}

// processEvents drains the session's event queue. Each event is taken off
// the queue, acted on unless the session is being torn down, and
// acknowledged exactly once. The adapter is pinned for the duration of the
// dispatch and may already be gone, in which case there is simply no
// adapter to notify.
//
// The unregistering flag is re-read under eventMutex for every event: a
// worker invocation scheduled before teardown started may still be running
// in normal mode, and must fall back to discarding instead of rescanning
// the moment the flag is set.
//
// Must not run concurrently with itself for one session: the normal path
// is serialized by the single event worker, and the teardown path flushes
// that worker before calling with cleanupOnly set.
func (session *Session) processEvents(cleanupOnly bool) {
	log := logger.GetLogger()

	session.eventMutex.Lock()
	for len(session.eventQueue) > 0 {
		event := session.eventQueue[0]
		session.eventQueue = session.eventQueue[1:]
		discard := cleanupOnly || session.unregistering
		adapter := session.adapter
		if adapter != nil && !adapter.TryAcquire() {
			adapter = nil
		}
		session.eventMutex.Unlock()

		if !discard && adapter != nil {
			// Let's always rescan.
			adapter.Rescan()
		} else if !discard {
			log.Debugf("session %d: no adapter to notify for async event",
				session.number)
		}

		event.Done()
		if adapter != nil {
			adapter.Release()
		}

		session.eventMutex.Lock()
	}
	if !cleanupOnly {
		session.workScheduled = false
	}
	session.eventMutex.Unlock()
}
