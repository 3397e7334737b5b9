// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/

// Package engine is an in-process SCSI target engine. It executes a
// direct-access command subset against memory-backed logical units and
// drives the registered template slots for completions, task management
// and asynchronous events.
package engine

import (
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"

	"scsibridge/pkg/bridge"
	"scsibridge/pkg/logger"
)

const defaultQueueDepth = 32

type Option func(*LocalEngine)

// WithBidirectional enables the bidirectional data path.
func WithBidirectional() Option {
	return func(engine *LocalEngine) {
		engine.bidirectional = true
	}
}

// WithQueueDepth caps the number of outstanding commands per session.
func WithQueueDepth(depth int) Option {
	return func(engine *LocalEngine) {
		engine.queueDepth = depth
	}
}

// LocalEngine implements the target engine contract against in-memory
// logical units. Every registered target carries the template of the
// driver that registered it; command execution happens on a goroutine
// per submitted command.
type LocalEngine struct {
	mutex   sync.Mutex
	targets map[string]*target

	queueDepth    int
	bidirectional bool

	commands sync.WaitGroup
}

func New(options ...Option) *LocalEngine {
	engine := &LocalEngine{
		targets:    make(map[string]*target),
		queueDepth: defaultQueueDepth,
	}
	for _, option := range options {
		option(engine)
	}
	return engine
}

type target struct {
	name     string
	template *bridge.TargetTemplate
	priv     any

	unitsMutex     sync.Mutex
	units          map[byte]*LogicalUnit
	availableUnits unitNumbers

	sessionsMutex sync.Mutex
	sessions      []*session
}

func (target *target) Name() string {
	return target.name
}

func (target *target) SetPriv(priv any) {
	target.priv = priv
}

func (target *target) Priv() any {
	return target.priv
}

type session struct {
	target        *target
	initiatorName string
	// Identifies the I_T nexus for the lifetime of the session.
	nexusID uuid.UUID
	priv    any

	pendingMutex sync.Mutex
	pending      map[uint64]*bridge.EngineCommand
	outstanding  int
	closed       bool
}

func (session *session) InitiatorName() string {
	return session.initiatorName
}

func (session *session) Priv() any {
	return session.priv
}

func (engine *LocalEngine) RegisterTarget(
	name string,
	template *bridge.TargetTemplate,
) (bridge.EngineTarget, error) {
	if template == nil || template.XmitResponse == nil {
		return nil, fmt.Errorf("target %s: template lacks a response slot", name)
	}
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	if _, ok := engine.targets[name]; ok {
		return nil, fmt.Errorf("target %s already registered", name)
	}
	target := &target{
		name:     name,
		template: template,
		units:    make(map[byte]*LogicalUnit),
	}
	target.availableUnits.clear()
	engine.targets[name] = target
	return target, nil
}

func (engine *LocalEngine) UnregisterTarget(engineTarget bridge.EngineTarget) {
	target, ok := engineTarget.(*target)
	if !ok {
		return
	}
	engine.mutex.Lock()
	delete(engine.targets, target.name)
	engine.mutex.Unlock()
}

func (engine *LocalEngine) RegisterSession(
	engineTarget bridge.EngineTarget,
	initiatorName string,
	priv any,
) (bridge.EngineSession, error) {
	target, ok := engineTarget.(*target)
	if !ok {
		return nil, fmt.Errorf("foreign target handle")
	}
	session := &session{
		target:        target,
		initiatorName: initiatorName,
		nexusID:       uuid.NewV1(),
		priv:          priv,
		pending:       make(map[uint64]*bridge.EngineCommand),
	}
	target.sessionsMutex.Lock()
	for _, existing := range target.sessions {
		if existing.initiatorName == initiatorName {
			target.sessionsMutex.Unlock()
			return nil, fmt.Errorf(
				"initiator %s already has a nexus with target %s",
				initiatorName, target.name)
		}
	}
	target.sessions = append(target.sessions, session)
	target.sessionsMutex.Unlock()

	logger.GetLogger().Debugf("nexus %s established for %s on %s",
		session.nexusID, initiatorName, target.name)
	return session, nil
}

func (engine *LocalEngine) UnregisterSession(engineSession bridge.EngineSession) {
	session, ok := engineSession.(*session)
	if !ok {
		return
	}
	session.pendingMutex.Lock()
	session.closed = true
	session.pendingMutex.Unlock()

	target := session.target
	target.sessionsMutex.Lock()
	for index, candidate := range target.sessions {
		if candidate == session {
			target.sessions = append(target.sessions[:index], target.sessions[index+1:]...)
			break
		}
	}
	target.sessionsMutex.Unlock()
}

// NewCommand allocates a command handle. The failure here is the session
// queue being full; the caller treats it as transient backpressure.
func (engine *LocalEngine) NewCommand(
	engineSession bridge.EngineSession,
	lun [8]byte,
	cdb []byte,
) (*bridge.EngineCommand, error) {
	session, ok := engineSession.(*session)
	if !ok {
		return nil, fmt.Errorf("foreign session handle")
	}
	session.pendingMutex.Lock()
	defer session.pendingMutex.Unlock()
	if session.closed {
		return nil, fmt.Errorf("nexus %s is closed", session.nexusID)
	}
	if session.outstanding >= engine.queueDepth {
		return nil, fmt.Errorf("nexus %s queue full (%d outstanding)",
			session.nexusID, session.outstanding)
	}
	session.outstanding++
	return &bridge.EngineCommand{
		Session: engineSession,
		LUN:     lun,
		CDB:     cdb,
	}, nil
}

// Submit queues the command for execution. The abort window is between
// here and the completion check: an abort received in that window marks
// the command so the response slot sees it aborted.
func (engine *LocalEngine) Submit(command *bridge.EngineCommand) {
	session := command.Session.(*session)
	session.pendingMutex.Lock()
	session.pending[command.Tag] = command
	session.pendingMutex.Unlock()

	engine.commands.Add(1)
	go func() {
		defer engine.commands.Done()
		template := session.target.template
		if template.PreExec != nil {
			template.PreExec(command)
		}
		engine.execute(session, command)

		session.pendingMutex.Lock()
		delete(session.pending, command.Tag)
		session.pendingMutex.Unlock()

		template.XmitResponse(command)
	}()
}

func (engine *LocalEngine) CommandDone(command *bridge.EngineCommand) {
	session, ok := command.Session.(*session)
	if !ok {
		return
	}
	session.pendingMutex.Lock()
	session.outstanding--
	session.pendingMutex.Unlock()
}

// ReceiveTaskManagement runs the management function asynchronously and
// signals the template's done slot when finished.
func (engine *LocalEngine) ReceiveTaskManagement(
	engineSession bridge.EngineSession,
	request *bridge.TaskManagementRequest,
) error {
	session, ok := engineSession.(*session)
	if !ok {
		return fmt.Errorf("foreign session handle")
	}
	template := session.target.template
	if template.TaskManagementDone == nil {
		return fmt.Errorf("target %s: no task management slot", session.target.name)
	}
	go func() {
		switch request.Function {
		case bridge.TaskAbort:
			request.Result = engine.abortTask(session, request.Tag)
		case bridge.TaskDeviceReset, bridge.TaskTargetReset:
			// Memory-backed units hold no hardware state to reset; pending
			// commands are left to complete in order.
			request.Result = bridge.TaskComplete
		default:
			request.Result = bridge.TaskNotSupported
		}
		template.TaskManagementDone(request)
	}()
	return nil
}

func (engine *LocalEngine) abortTask(session *session, tag uint64) bridge.TaskResult {
	session.pendingMutex.Lock()
	defer session.pendingMutex.Unlock()
	command, ok := session.pending[tag]
	if !ok {
		return bridge.TaskNoTask
	}
	command.AbortedOnXmit = true
	return bridge.TaskComplete
}

func (engine *LocalEngine) MaxQueueDepth(engineSession bridge.EngineSession, lun uint64) int {
	return engine.queueDepth
}

func (engine *LocalEngine) HasUnits(engineTarget bridge.EngineTarget, initiatorName string) bool {
	target, ok := engineTarget.(*target)
	if !ok {
		return false
	}
	target.unitsMutex.Lock()
	defer target.unitsMutex.Unlock()
	return len(target.units) > 0
}

func (engine *LocalEngine) SupportsBidirectional() bool {
	return engine.bidirectional
}

// ExpelSession asks the driver to tear the session down, the engine-side
// analogue of a nexus loss.
func (engine *LocalEngine) ExpelSession(engineSession bridge.EngineSession) {
	session, ok := engineSession.(*session)
	if !ok {
		return
	}
	template := session.target.template
	if template.CloseSession != nil {
		template.CloseSession(engineSession)
	}
}

// Drain waits for every in-flight command goroutine to finish.
func (engine *LocalEngine) Drain() {
	engine.commands.Wait()
}

func (engine *LocalEngine) findTarget(name string) (*target, error) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	target, ok := engine.targets[name]
	if !ok {
		return nil, fmt.Errorf("target %s not registered", name)
	}
	return target, nil
}
