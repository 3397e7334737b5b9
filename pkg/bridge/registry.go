// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"fmt"

	"scsibridge/pkg/logger"
)

// AddTarget registers a named target with the engine and links it into
// the registry. On partial failure the engine-side registration is
// unwound before the error is returned.
func (bridge *Bridge) AddTarget(name string) (*Target, error) {
	if !bridge.gate.tryAcquire() {
		return nil, ErrShuttingDown
	}
	defer bridge.gate.release()

	bridge.mutex.Lock()
	_, duplicate := bridge.targets[name]
	bridge.mutex.Unlock()
	if duplicate {
		return nil, fmt.Errorf("add target %s: %w", name, ErrDuplicateTargetName)
	}

	target := &Target{name: name}
	engineTarget, err := bridge.engine.RegisterTarget(name, bridge.template())
	if err != nil {
		return nil, fmt.Errorf("add target %s: engine registration: %w", name, err)
	}
	engineTarget.SetPriv(target)
	target.engineTarget = engineTarget

	bridge.mutex.Lock()
	if _, raced := bridge.targets[name]; raced {
		bridge.mutex.Unlock()
		bridge.engine.UnregisterTarget(engineTarget)
		return nil, fmt.Errorf("add target %s: %w", name, ErrDuplicateTargetName)
	}
	bridge.targets[name] = target
	bridge.mutex.Unlock()

	logger.GetLogger().Infof("target %s registered", name)
	return target, nil
}

// RemoveTarget tears down every session the target owns, then releases
// the engine-side registration.
func (bridge *Bridge) RemoveTarget(name string) error {
	if !bridge.gate.tryAcquire() {
		return ErrShuttingDown
	}
	defer bridge.gate.release()

	bridge.mutex.Lock()
	target, ok := bridge.targets[name]
	if !ok || target.removing {
		bridge.mutex.Unlock()
		return fmt.Errorf("remove target %s: %w", name, ErrTargetNotFound)
	}
	target.removing = true
	bridge.mutex.Unlock()

	bridge.removeTargetImpl(target)
	return nil
}

// removeTargetImpl runs with the removing flag already claimed. Sessions
// go first; only then is the engine registration released and the target
// unlinked.
func (bridge *Bridge) removeTargetImpl(target *Target) {
	bridge.mutex.Lock()
	sessions := make([]*Session, len(target.sessions))
	copy(sessions, target.sessions)
	bridge.mutex.Unlock()

	for _, session := range sessions {
		bridge.removeSessionImpl(session, false)
	}

	bridge.mutex.Lock()
	delete(bridge.targets, target.name)
	bridge.mutex.Unlock()

	bridge.engine.UnregisterTarget(target.engineTarget)
	logger.GetLogger().Infof("target %s removed", target.name)
}

// AddSession performs, in order: allocate session state, register with
// the engine, publish the adapter handle, link into the target. Any step
// failing unwinds everything done before it.
func (bridge *Bridge) AddSession(target *Target, initiatorName string) (*Session, error) {
	if !bridge.gate.tryAcquire() {
		return nil, ErrShuttingDown
	}
	defer bridge.gate.release()

	log := logger.GetLogger()
	session := &Session{
		number:        bridge.sessionNumber.Add(1),
		initiatorName: initiatorName,
		target:        target,
		bridge:        bridge,
	}

	engineSession, err := bridge.engine.RegisterSession(target.engineTarget, initiatorName, session)
	if err != nil {
		return nil, fmt.Errorf("add session %s: engine registration: %w", initiatorName, err)
	}
	session.engineSession = engineSession

	adapter, err := bridge.publish(session)
	if err != nil {
		bridge.engine.UnregisterSession(engineSession)
		return nil, fmt.Errorf("add session %s: adapter publish: %w", initiatorName, err)
	}
	session.eventMutex.Lock()
	session.adapter = adapter
	session.eventMutex.Unlock()

	bridge.mutex.Lock()
	target.sessions = append(target.sessions, session)
	bridge.mutex.Unlock()

	if bridge.engine.HasUnits(target.engineTarget, initiatorName) {
		adapter.Rescan()
	}

	log.Infof("session %d (%s) registered on target %s",
		session.number, initiatorName, target.name)
	return session, nil
}

// RemoveSession is idempotent: a second request against the same session
// is a no-op. async defers the destructive teardown to the remove worker
// for callers that may hold a lock the teardown path needs.
func (bridge *Bridge) RemoveSession(session *Session, async bool) error {
	if !bridge.gate.tryAcquire() {
		return ErrShuttingDown
	}
	defer bridge.gate.release()

	bridge.removeSessionImpl(session, async)
	return nil
}

func (bridge *Bridge) FindTarget(name string) (*Target, error) {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	target, ok := bridge.targets[name]
	if !ok || target.removing {
		return nil, fmt.Errorf("target %s: %w", name, ErrTargetNotFound)
	}
	return target, nil
}

func (bridge *Bridge) FindSession(targetName, initiatorName string) (*Session, error) {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	target, ok := bridge.targets[targetName]
	if !ok || target.removing {
		return nil, fmt.Errorf("target %s: %w", targetName, ErrTargetNotFound)
	}
	for _, session := range target.sessions {
		if session.initiatorName == initiatorName {
			return session, nil
		}
	}
	return nil, fmt.Errorf("session %s (target %s): %w",
		initiatorName, targetName, ErrSessionNotFound)
}

type SessionView struct {
	Number        int64
	InitiatorName string
	Unregistering bool
}

type TargetView struct {
	Name                 string
	ScsiTransportVersion uint16
	PhysTransportVersion uint16
	Sessions             []SessionView
}

// List snapshots the registry for the introspection surface.
func (bridge *Bridge) List() []TargetView {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	views := make([]TargetView, 0, len(bridge.targets))
	for _, target := range bridge.targets {
		view := TargetView{
			Name:                 target.name,
			ScsiTransportVersion: target.ScsiTransportVersion(),
			PhysTransportVersion: target.PhysTransportVersion(),
			Sessions:             make([]SessionView, 0, len(target.sessions)),
		}
		for _, session := range target.sessions {
			view.Sessions = append(view.Sessions, SessionView{
				Number:        session.number,
				InitiatorName: session.initiatorName,
				Unregistering: session.isUnregistering(),
			})
		}
		views = append(views, view)
	}
	return views
}
