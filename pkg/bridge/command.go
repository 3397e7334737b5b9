// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"fmt"

	"scsibridge/pkg/logger"
)

// SenseBufferSize is the fixed capacity of the initiator-visible sense
// buffer; engine sense data beyond it is truncated silently.
const SenseBufferSize = 96

// Host-byte dispositions reported alongside the SCSI status.
const (
	HostOK        byte = 0x00
	HostBadTarget byte = 0x04
)

// Command is the transient initiator-side command context. It exists for
// one round trip and is destroyed when Done is invoked.
type Command struct {
	LUN       uint64
	CDB       []byte
	Tag       uint64
	TagType   TagType
	Direction DataDirection

	// Buffer descriptors by reference; InBuffer receives data on the read
	// direction, OutBuffer supplies it on the write direction. A
	// bidirectional command needs both.
	InBuffer  *DataBuffer
	OutBuffer *DataBuffer

	// Done is the completion continuation, invoked exactly once unless
	// the command is aborted during transmission.
	Done func(result *Result)
}

// Result is the initiator-visible completion of one command.
type Result struct {
	HostStatus byte
	Status     byte
	Sense      []byte
	Residual   uint32
}

// SubmitCommand translates one initiator command into the engine domain
// and hands it over for execution. A submission failure in the engine is
// reported as ErrHostBusy so the caller can apply backpressure; a session
// already unregistering completes immediately with a bad-target result.
func (bridge *Bridge) SubmitCommand(session *Session, command *Command) error {
	if !bridge.gate.tryAcquire() {
		return ErrShuttingDown
	}
	defer bridge.gate.release()

	log := logger.GetLogger()
	log.Debugf("lun %d, cmd: 0x%02X", command.LUN, cdbOpcode(command.CDB))

	if session.isUnregistering() {
		command.Done(&Result{HostStatus: HostBadTarget})
		return nil
	}

	engineCommand, err := bridge.engine.NewCommand(
		session.engineSession, EncodeLUN(command.LUN), command.CDB)
	if err != nil {
		log.Errorf("engine command allocation failed: %v", err)
		return fmt.Errorf("%w: %v", ErrHostBusy, err)
	}

	engineCommand.Tag = command.Tag
	engineCommand.QueueType = queueTypeFor(command.TagType)

	switch command.Direction {
	case DataBidirectional:
		// Best-effort compatibility path, only when the engine has one.
		if !bridge.engine.SupportsBidirectional() {
			bridge.engine.CommandDone(engineCommand)
			return ErrBidirectionalUnsupported
		}
		engineCommand.Direction = DataBidirectional
		engineCommand.ExpectedLength = bufferLength(command.InBuffer)
		engineCommand.ExpectedOutLength = bufferLength(command.OutBuffer)
		engineCommand.InBuffer = command.InBuffer
		engineCommand.OutBuffer = command.OutBuffer
	case DataWrite:
		engineCommand.Direction = DataWrite
		engineCommand.ExpectedLength = bufferLength(command.OutBuffer)
		engineCommand.OutBuffer = command.OutBuffer
	case DataRead:
		engineCommand.Direction = DataRead
		engineCommand.ExpectedLength = bufferLength(command.InBuffer)
		engineCommand.InBuffer = command.InBuffer
	default:
		engineCommand.Direction = DataNone
		engineCommand.ExpectedLength = 0
	}

	engineCommand.Priv = command
	bridge.engine.Submit(engineCommand)
	return nil
}

// xmitResponse is the template slot running the reverse translation. It
// is invoked exactly once per submitted command, on an arbitrary engine
// goroutine.
func (bridge *Bridge) xmitResponse(engineCommand *EngineCommand) {
	log := logger.GetLogger()

	if engineCommand.AbortedOnXmit {
		engineCommand.DeliveryStatus = DeliveryAborted
		bridge.engine.CommandDone(engineCommand)
		return
	}

	command := engineCommand.Priv.(*Command)
	result := &Result{HostStatus: HostOK}

	switch engineCommand.Direction {
	case DataRead, DataWrite:
		result.Residual = engineCommand.ExpectedLength - engineCommand.Transferred
	case DataBidirectional:
		result.Residual = engineCommand.ExpectedLength - engineCommand.Transferred
		if outResidual := engineCommand.ExpectedOutLength - engineCommand.OutTransferred; outResidual != 0 {
			log.Errorf("unable to return OUT residual %d (op %02x)",
				outResidual, cdbOpcode(command.CDB))
		}
	}

	if len(engineCommand.Sense) > 0 {
		senseLength := len(engineCommand.Sense)
		if senseLength > SenseBufferSize {
			senseLength = SenseBufferSize
		}
		result.Sense = make([]byte, senseLength)
		copy(result.Sense, engineCommand.Sense)
	}
	result.Status = engineCommand.Status

	command.Done(result)
	bridge.engine.CommandDone(engineCommand)
}

// preExec is the buffer-staging slot; the engine reads and writes the
// descriptors in place, so there is nothing to copy here.
func (bridge *Bridge) preExec(engineCommand *EngineCommand) {
	logger.GetLogger().Debugf("pre-exec tag %d, direction %d",
		engineCommand.Tag, engineCommand.Direction)
}

func queueTypeFor(tagType TagType) QueueType {
	switch tagType {
	case TagSimple:
		return QueueSimple
	case TagHeadOfQueue:
		return QueueHeadOfQueue
	case TagOrdered:
		return QueueOrdered
	default:
		return QueueUntagged
	}
}

func bufferLength(buffer *DataBuffer) uint32 {
	if buffer == nil {
		return 0
	}
	return buffer.Length
}

func cdbOpcode(cdb []byte) byte {
	if len(cdb) == 0 {
		return 0
	}
	return cdb[0]
}
