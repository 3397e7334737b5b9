// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

// The target engine is an external collaborator. The bridge registers a
// target template with it and talks to it exclusively through the Engine
// interface; the engine calls back through the template slots.

type DataDirection int

const (
	DataNone DataDirection = iota
	DataRead
	DataWrite
	DataBidirectional
)

// TagType is the queue-ordering class requested by the initiator side.
type TagType int

const (
	TagUntagged TagType = iota
	TagSimple
	TagHeadOfQueue
	TagOrdered
)

// QueueType is the engine-side queue discipline a TagType maps onto.
type QueueType int

const (
	QueueUntagged QueueType = iota
	QueueSimple
	QueueHeadOfQueue
	QueueOrdered
)

type DeliveryStatus int

const (
	DeliverySuccess DeliveryStatus = iota
	DeliveryAborted
)

// DataBuffer is a buffer descriptor. It is always passed by reference;
// the bridge itself never copies command data.
type DataBuffer struct {
	Data   []byte
	Length uint32
}

// EngineCommand carries one command through the engine round trip. The
// bridge fills the submission fields, the engine fills the completion
// fields before invoking the template's XmitResponse slot.
type EngineCommand struct {
	Session EngineSession
	LUN     [8]byte
	CDB     []byte

	Tag               uint64
	QueueType         QueueType
	Direction         DataDirection
	ExpectedLength    uint32
	ExpectedOutLength uint32
	InBuffer          *DataBuffer
	OutBuffer         *DataBuffer

	Status         byte
	Sense          []byte
	Transferred    uint32
	OutTransferred uint32
	AbortedOnXmit  bool
	DeliveryStatus DeliveryStatus

	// Priv is owned by the bridge, opaque to the engine.
	Priv any
}

type EventKind int

const (
	EventUnknown EventKind = iota
	EventUnitAttention
)

// AsyncEvent is one out-of-band notification from the engine. Done releases
// the acknowledgment handle; the dispatcher calls it exactly once.
type AsyncEvent struct {
	Kind EventKind
	LUN  uint64
	ack  func()
}

func NewAsyncEvent(kind EventKind, lun uint64, ack func()) *AsyncEvent {
	return &AsyncEvent{Kind: kind, LUN: lun, ack: ack}
}

func (event *AsyncEvent) Done() {
	if event.ack != nil {
		event.ack()
	}
}

type TaskFunction int

const (
	TaskAbort TaskFunction = iota
	TaskDeviceReset
	TaskTargetReset
)

type TaskResult int

const (
	TaskComplete TaskResult = iota
	TaskNoTask
	TaskNotSupported
)

// TaskManagementRequest is keyed by Tag for TaskAbort and by LUN for the
// reset functions. The engine signals completion through the template's
// TaskManagementDone slot; Priv is owned by the bridge.
type TaskManagementRequest struct {
	Function TaskFunction
	Tag      uint64
	LUN      [8]byte
	Result   TaskResult
	Priv     any
}

type EngineTarget interface {
	Name() string
	SetPriv(priv any)
	Priv() any
}

type EngineSession interface {
	InitiatorName() string
	Priv() any
}

// TargetTemplate is registered once per target; the engine invokes the
// slots to reach back into the bridge.
type TargetTemplate struct {
	Name string

	// PreExec stages buffers before the engine executes the command.
	PreExec func(command *EngineCommand)
	// XmitResponse transmits the completed command back to the initiator
	// side. Invoked exactly once per submitted command.
	XmitResponse func(command *EngineCommand)
	// TaskManagementDone signals that an abort/reset finished in the engine.
	TaskManagementDone func(request *TaskManagementRequest)
	// ReportEvent delivers an asynchronous event for a session. A non-nil
	// error tells the engine the event was not queued.
	ReportEvent func(session EngineSession, event *AsyncEvent) error
	// CloseSession asks the bridge to tear a session down on the engine's
	// initiative.
	CloseSession func(session EngineSession)

	ScsiTransportVersion func(target EngineTarget) uint16
	PhysTransportVersion func(target EngineTarget) uint16
}

type Engine interface {
	RegisterTarget(name string, template *TargetTemplate) (EngineTarget, error)
	UnregisterTarget(target EngineTarget)
	RegisterSession(target EngineTarget, initiatorName string, priv any) (EngineSession, error)
	UnregisterSession(session EngineSession)

	// NewCommand allocates a command handle; a failure is transient and
	// the caller is expected to retry. Submit hands the fully populated
	// handle over for asynchronous execution.
	NewCommand(session EngineSession, lun [8]byte, cdb []byte) (*EngineCommand, error)
	Submit(command *EngineCommand)
	// CommandDone tells the engine the bridge is finished with the handle.
	CommandDone(command *EngineCommand)

	ReceiveTaskManagement(session EngineSession, request *TaskManagementRequest) error
	MaxQueueDepth(session EngineSession, lun uint64) int
	HasUnits(target EngineTarget, initiatorName string) bool
	SupportsBidirectional() bool
}

// EncodeLUN packs a flat logical-unit number into the 8-byte wire encoding
// the engine expects: four 16-bit levels, each big endian.
func EncodeLUN(lun uint64) [8]byte {
	var out [8]byte
	for i := 0; i < 4; i++ {
		out[2*i] = byte(lun >> (16*i + 8))
		out[2*i+1] = byte(lun >> (16 * i))
	}
	return out
}

func DecodeLUN(encoded [8]byte) uint64 {
	var lun uint64
	for i := 0; i < 4; i++ {
		lun |= uint64(encoded[2*i]) << (16*i + 8)
		lun |= uint64(encoded[2*i+1]) << (16 * i)
	}
	return lun
}
