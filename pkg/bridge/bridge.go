// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/

// Package bridge connects an initiator-side virtual adapter to a target
// engine running in the same process, passing commands, completions and
// asynchronous events directly between the two domains instead of over a
// physical transport.
package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"scsibridge/pkg/initiator"
	"scsibridge/pkg/logger"
)

const AdapterName = "scsibridge"

// Bridge is the process-wide service object. The registry of targets and
// sessions, the quiesce gate and the worker queues are constructed before
// any request is accepted and drained in reverse order on Shutdown.
type Bridge struct {
	engine Engine

	gate quiesceGate

	// mutex protects targets and every Target's session list. It is never
	// held across a call into the engine: the engine may re-enter the
	// registry through a template callback.
	mutex   sync.Mutex
	targets map[string]*Target

	// aenQueue runs the event dispatchers, removeQueue the deferred
	// session teardowns. Event volume is low, one worker each suffices.
	aenQueue    *workQueue
	removeQueue *workQueue

	sessionNumber atomic.Int64
	stats         Stats

	// publish creates the initiator-side adapter handle for a new
	// session; swapped out by tests to inject publish failures.
	publish func(session *Session) (*initiator.Adapter, error)

	shutdownOnce sync.Once
}

func New(engine Engine) (*Bridge, error) {
	if engine == nil {
		return nil, fmt.Errorf("bridge requires a target engine")
	}
	bridge := &Bridge{
		engine:      engine,
		targets:     make(map[string]*Target),
		aenQueue:    newWorkQueue(),
		removeQueue: newWorkQueue(),
	}
	bridge.publish = func(session *Session) (*initiator.Adapter, error) {
		name := fmt.Sprintf("%s_%d", AdapterName, session.number)
		return initiator.Publish(name, session, nil)
	}
	return bridge, nil
}

// template builds the callback slots handed to the engine when a target
// is registered.
func (bridge *Bridge) template() *TargetTemplate {
	return &TargetTemplate{
		Name:                 AdapterName,
		PreExec:              bridge.preExec,
		XmitResponse:         bridge.xmitResponse,
		TaskManagementDone:   bridge.taskManagementDone,
		ReportEvent:          bridge.reportEvent,
		CloseSession:         bridge.closeSession,
		ScsiTransportVersion: scsiTransportVersionOf,
		PhysTransportVersion: physTransportVersionOf,
	}
}

// closeSession is the engine-initiated teardown slot. The engine may hold
// its own locks here, so the destructive path is always deferred.
func (bridge *Bridge) closeSession(engineSession EngineSession) {
	session, ok := engineSession.Priv().(*Session)
	if !ok {
		return
	}
	bridge.removeSessionImpl(session, true)
}

// Shutdown quiesces the whole bridge: no ordinary operation can enter once
// the exclusive gate is held, every session and target is torn down, then
// the worker queues are stopped. Safe to call more than once.
func (bridge *Bridge) Shutdown() {
	bridge.shutdownOnce.Do(bridge.shutdown)
}

func (bridge *Bridge) shutdown() {
	log := logger.GetLogger()
	bridge.gate.acquireExclusive()

	bridge.mutex.Lock()
	targets := make([]*Target, 0, len(bridge.targets))
	for _, target := range bridge.targets {
		if !target.removing {
			target.removing = true
			targets = append(targets, target)
		}
	}
	bridge.mutex.Unlock()

	for _, target := range targets {
		bridge.removeTargetImpl(target)
	}

	bridge.aenQueue.Stop()
	bridge.removeQueue.Stop()

	// The exclusive gate is never released: the bridge stays quiesced and
	// every later tryAcquire fails with ErrShuttingDown.
	log.Infof("%s: shut down, %d targets removed", AdapterName, len(targets))
}
