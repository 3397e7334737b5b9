// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"fmt"
	"sync"
)

// fakeEngine is a deterministic engine double. Submissions complete
// synchronously on the caller goroutine through the registered template,
// with the completion fields filled by completeCommand.
type fakeEngine struct {
	mutex    sync.Mutex
	template *TargetTemplate

	registerTargetErr  error
	registerSessionErr error
	newCommandErr      error
	hasUnits           bool
	bidirectional      bool
	holdTaskManagement bool

	// completeCommand mutates the completion fields before the response
	// slot fires. Nil completes with good status and a full transfer.
	completeCommand func(command *EngineCommand)

	calls              []string
	submitted          []*EngineCommand
	retired            []*EngineCommand
	heldTaskRequests   []*TaskManagementRequest
	taskRequests       []*TaskManagementRequest
	unregisteredCount  int
	registeredSessions int
}

type fakeTarget struct {
	name string
	priv any
}

func (target *fakeTarget) Name() string     { return target.name }
func (target *fakeTarget) SetPriv(priv any) { target.priv = priv }
func (target *fakeTarget) Priv() any        { return target.priv }

type fakeSession struct {
	name string
	priv any
}

func (session *fakeSession) InitiatorName() string { return session.name }
func (session *fakeSession) Priv() any             { return session.priv }

func (engine *fakeEngine) record(call string) {
	engine.mutex.Lock()
	engine.calls = append(engine.calls, call)
	engine.mutex.Unlock()
}

func (engine *fakeEngine) RegisterTarget(name string, template *TargetTemplate) (EngineTarget, error) {
	if engine.registerTargetErr != nil {
		return nil, engine.registerTargetErr
	}
	engine.mutex.Lock()
	engine.template = template
	engine.mutex.Unlock()
	engine.record("RegisterTarget:" + name)
	return &fakeTarget{name: name}, nil
}

func (engine *fakeEngine) UnregisterTarget(target EngineTarget) {
	engine.record("UnregisterTarget:" + target.Name())
}

func (engine *fakeEngine) RegisterSession(
	target EngineTarget,
	initiatorName string,
	priv any,
) (EngineSession, error) {
	if engine.registerSessionErr != nil {
		return nil, engine.registerSessionErr
	}
	engine.mutex.Lock()
	engine.registeredSessions++
	engine.mutex.Unlock()
	engine.record("RegisterSession:" + initiatorName)
	return &fakeSession{name: initiatorName, priv: priv}, nil
}

func (engine *fakeEngine) UnregisterSession(session EngineSession) {
	engine.mutex.Lock()
	engine.unregisteredCount++
	engine.mutex.Unlock()
	engine.record("UnregisterSession:" + session.InitiatorName())
}

func (engine *fakeEngine) NewCommand(
	session EngineSession,
	lun [8]byte,
	cdb []byte,
) (*EngineCommand, error) {
	if engine.newCommandErr != nil {
		return nil, engine.newCommandErr
	}
	engine.record("NewCommand")
	return &EngineCommand{Session: session, LUN: lun, CDB: cdb}, nil
}

func (engine *fakeEngine) Submit(command *EngineCommand) {
	engine.mutex.Lock()
	engine.submitted = append(engine.submitted, command)
	template := engine.template
	complete := engine.completeCommand
	engine.mutex.Unlock()

	if template.PreExec != nil {
		template.PreExec(command)
	}
	if complete != nil {
		complete(command)
	} else {
		command.Status = 0x00
		command.Transferred = command.ExpectedLength
	}
	template.XmitResponse(command)
}

func (engine *fakeEngine) CommandDone(command *EngineCommand) {
	engine.mutex.Lock()
	engine.retired = append(engine.retired, command)
	engine.mutex.Unlock()
}

func (engine *fakeEngine) ReceiveTaskManagement(
	session EngineSession,
	request *TaskManagementRequest,
) error {
	engine.mutex.Lock()
	engine.taskRequests = append(engine.taskRequests, request)
	hold := engine.holdTaskManagement
	if hold {
		engine.heldTaskRequests = append(engine.heldTaskRequests, request)
	}
	template := engine.template
	engine.mutex.Unlock()

	if !hold {
		request.Result = TaskComplete
		template.TaskManagementDone(request)
	}
	return nil
}

func (engine *fakeEngine) releaseHeldTaskRequests() {
	engine.mutex.Lock()
	held := engine.heldTaskRequests
	engine.heldTaskRequests = nil
	template := engine.template
	engine.mutex.Unlock()
	for _, request := range held {
		request.Result = TaskComplete
		template.TaskManagementDone(request)
	}
}

func (engine *fakeEngine) MaxQueueDepth(session EngineSession, lun uint64) int {
	return 32
}

func (engine *fakeEngine) HasUnits(target EngineTarget, initiatorName string) bool {
	return engine.hasUnits
}

func (engine *fakeEngine) SupportsBidirectional() bool {
	return engine.bidirectional
}

func (engine *fakeEngine) retiredCount() int {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return len(engine.retired)
}

func (engine *fakeEngine) callSequence() []string {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	out := make([]string, len(engine.calls))
	copy(out, engine.calls)
	return out
}

var errInjected = fmt.Errorf("injected failure")
