// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"sync"

	"scsibridge/pkg/initiator"
	"scsibridge/pkg/logger"
)

// Session is one registered initiator identity bound to a target. The
// unregistering flag, the event queue and the adapter slot all live under
// eventMutex so that the first removal request, and only the first, runs
// the destructive teardown.
type Session struct {
	number        int64
	initiatorName string
	target        *Target
	engineSession EngineSession
	bridge        *Bridge

	transportIDMutex sync.Mutex
	transportID      []byte

	eventMutex    sync.Mutex
	eventQueue    []*AsyncEvent
	workScheduled bool
	unregistering bool
	adapter       *initiator.Adapter
}

func (session *Session) Number() int64 {
	return session.number
}

func (session *Session) InitiatorName() string {
	return session.initiatorName
}

func (session *Session) Target() *Target {
	return session.target
}

// Adapter returns the published adapter handle, nil once teardown has
// taken it away.
func (session *Session) Adapter() *initiator.Adapter {
	session.eventMutex.Lock()
	defer session.eventMutex.Unlock()
	return session.adapter
}

func (session *Session) isUnregistering() bool {
	session.eventMutex.Lock()
	defer session.eventMutex.Unlock()
	return session.unregistering
}

// removeSessionImpl transitions the session to unregistering exactly once
// and schedules the destructive teardown. Callers that may already hold a
// lock the teardown needs pass async=true to defer it to the remove worker.
func (bridge *Bridge) removeSessionImpl(session *Session, async bool) {
	session.eventMutex.Lock()
	alreadyUnregistering := session.unregistering
	session.unregistering = true
	session.eventMutex.Unlock()

	if alreadyUnregistering {
		return
	}
	if async {
		bridge.removeQueue.Queue(func() {
			bridge.removeAdapter(session)
		})
	} else {
		bridge.removeAdapter(session)
	}
}

// removeAdapter is the destructive teardown path. The engine might still
// be queueing events when this starts, so the event worker is flushed
// before the cleanup-only drain; after that no worker invocation can be
// dispatching for this session.
func (bridge *Bridge) removeAdapter(session *Session) {
	log := logger.GetLogger()

	bridge.aenQueue.Flush()
	session.processEvents(true)

	session.eventMutex.Lock()
	adapter := session.adapter
	session.adapter = nil
	session.eventMutex.Unlock()
	if adapter != nil {
		adapter.Close()
	}

	bridge.engine.UnregisterSession(session.engineSession)

	bridge.mutex.Lock()
	target := session.target
	for index, candidate := range target.sessions {
		if candidate == session {
			target.sessions = append(target.sessions[:index], target.sessions[index+1:]...)
			break
		}
	}
	bridge.mutex.Unlock()

	log.Infof("session %d (%s) removed from target %s",
		session.number, session.initiatorName, target.name)
}
