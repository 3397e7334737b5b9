// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
// Primary and block command processing.
package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"scsibridge/pkg/bridge"
	"scsibridge/pkg/logger"
)

type CommandType byte

const (
	TestUnitReady      CommandType = 0x00
	RequestSense       CommandType = 0x03
	Inquiry            CommandType = 0x12
	ReadCapacity10     CommandType = 0x25
	Read10             CommandType = 0x28
	Write10            CommandType = 0x2a
	SynchronizeCache10 CommandType = 0x35
	Read16             CommandType = 0x88
	Write16            CommandType = 0x8a
	SynchronizeCache16 CommandType = 0x91
	ServiceActionIn    CommandType = 0x9e
	ReportLuns         CommandType = 0xa0
)

const serviceActionReadCapacity16 byte = 0x10

const (
	SamStatGood           byte = 0x00
	SamStatCheckCondition byte = 0x02
	SamStatBusy           byte = 0x08
)

const (
	NoSense        byte = 0x00
	NotReady       byte = 0x02
	MediumError    byte = 0x03
	IllegalRequest byte = 0x05
)

type AdditionalSenseCode uint16

const (
	NoAdditionalSense          AdditionalSenseCode = 0x0000
	AscBecomingReady           AdditionalSenseCode = 0x0401
	AscWriteError              AdditionalSenseCode = 0x0c00
	AscReadError               AdditionalSenseCode = 0x1100
	AscInvalidOpCode           AdditionalSenseCode = 0x2000
	AscLbaOutOfRange           AdditionalSenseCode = 0x2100
	AscInvalidFieldInCdb       AdditionalSenseCode = 0x2400
	AscLogicalUnitNotSupported AdditionalSenseCode = 0x2500
	AscMediumNotPresent        AdditionalSenseCode = 0x3a00
)

func OperationCodeToString(commandType CommandType) string {
	types := map[CommandType]string{
		TestUnitReady:      "TestUnitReady",
		RequestSense:       "RequestSense",
		Inquiry:            "Inquiry",
		ReadCapacity10:     "ReadCapacity10",
		Read10:             "Read10",
		Write10:            "Write10",
		SynchronizeCache10: "SynchronizeCache10",
		Read16:             "Read16",
		Write16:            "Write16",
		SynchronizeCache16: "SynchronizeCache16",
		ServiceActionIn:    "ServiceActionIn",
		ReportLuns:         "ReportLuns",
	}
	result, ok := types[commandType]
	if !ok {
		return fmt.Sprintf("0x%x", int(commandType))
	}
	return result
}

// BuildSenseData produces an 18-byte fixed format sense block, current
// errors, with the given key and additional code.
func BuildSenseData(key byte, asc AdditionalSenseCode) []byte {
	senseBuffer := &bytes.Buffer{}
	length := byte(0xa)
	// fixed format
	// current, not deferred
	senseBuffer.WriteByte(0x70)
	senseBuffer.WriteByte(0x00)
	senseBuffer.WriteByte(key)
	for i := 0; i < 4; i++ {
		senseBuffer.WriteByte(0x00)
	}
	senseBuffer.WriteByte(length)
	for i := 0; i < 4; i++ {
		senseBuffer.WriteByte(0x00)
	}
	senseBuffer.WriteByte(byte(asc>>8) & 0xff)
	senseBuffer.WriteByte(byte(asc) & 0xff)
	for i := 0; i < 4; i++ {
		senseBuffer.WriteByte(0x00)
	}
	return senseBuffer.Bytes()
}

func checkCondition(command *bridge.EngineCommand, key byte, asc AdditionalSenseCode) {
	command.Status = SamStatCheckCondition
	command.Sense = BuildSenseData(key, asc)
}

// execute runs one command against the owning target and fills the
// completion fields in place.
func (engine *LocalEngine) execute(session *session, command *bridge.EngineCommand) {
	log := logger.GetLogger()
	opcode := CommandType(0)
	if len(command.CDB) > 0 {
		opcode = CommandType(command.CDB[0])
	}
	lun := bridge.DecodeLUN(command.LUN)
	log.Debugf("scsi opcode: %s, LUN: %d", OperationCodeToString(opcode), lun)

	var unit *LogicalUnit
	if lun <= 0xff {
		unit = session.target.unit(byte(lun))
	}
	if unit == nil {
		// A bare nexus still answers the discovery commands on LUN 0.
		if lun == 0 && discoveryCommand(opcode) {
			engine.executeDiscovery(session, command, opcode)
			return
		}
		checkCondition(command, IllegalRequest, AscLogicalUnitNotSupported)
		return
	}

	switch opcode {
	case TestUnitReady:
		if !unit.Online {
			checkCondition(command, NotReady, AscBecomingReady)
			return
		}
		command.Status = SamStatGood
	case RequestSense:
		executeRequestSense(command)
	case Inquiry:
		executeInquiry(unit, command)
	case ReportLuns:
		executeReportLuns(session.target, command)
	case ReadCapacity10:
		executeReadCapacity10(unit, command)
	case ServiceActionIn:
		if len(command.CDB) > 1 && command.CDB[1]&0x1f == serviceActionReadCapacity16 {
			executeReadCapacity16(unit, command)
			return
		}
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
	case Read10, Read16:
		executeRead(unit, command)
	case Write10, Write16:
		executeWrite(unit, command)
	case SynchronizeCache10, SynchronizeCache16:
		if err := unit.Store.Sync(); err != nil {
			checkCondition(command, MediumError, AscWriteError)
			return
		}
		command.Status = SamStatGood
	default:
		checkCondition(command, IllegalRequest, AscInvalidOpCode)
	}
}

func discoveryCommand(opcode CommandType) bool {
	switch opcode {
	case TestUnitReady, RequestSense, Inquiry, ReportLuns:
		return true
	}
	return false
}

// executeDiscovery serves the commands a missing LUN 0 still answers,
// reporting itself offline and of unknown type.
func (engine *LocalEngine) executeDiscovery(
	session *session,
	command *bridge.EngineCommand,
	opcode CommandType,
) {
	switch opcode {
	case TestUnitReady:
		checkCondition(command, NotReady, AscBecomingReady)
	case RequestSense:
		executeRequestSense(command)
	case Inquiry:
		stub := &LogicalUnit{
			VendorID:   "BRIDGE",
			ProductID:  "SCSIBRIDGE",
			ProductRev: "0360",
			SerialNo:   "scsibridge-lun0",
		}
		executeInquiry(stub, command)
	case ReportLuns:
		executeReportLuns(session.target, command)
	}
}

func fillIn(command *bridge.EngineCommand, response []byte) {
	if command.InBuffer == nil {
		command.Transferred = 0
		return
	}
	transferred := copy(command.InBuffer.Data, response)
	if uint32(transferred) > command.ExpectedLength {
		transferred = int(command.ExpectedLength)
	}
	command.Transferred = uint32(transferred)
}

func executeRequestSense(command *bridge.EngineCommand) {
	response := BuildSenseData(NoSense, NoAdditionalSense)
	if len(command.CDB) > 4 && uint32(command.CDB[4]) < uint32(len(response)) {
		response = response[:command.CDB[4]]
	}
	fillIn(command, response)
	command.Status = SamStatGood
}

func executeInquiry(unit *LogicalUnit, command *bridge.EngineCommand) {
	if len(command.CDB) < 5 {
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}
	evpd := command.CDB[1]&0x01 != 0
	pageCode := command.CDB[2]
	if !evpd {
		if pageCode != 0 {
			checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
			return
		}
		fillIn(command, standardInquiry(unit))
		command.Status = SamStatGood
		return
	}
	switch pageCode {
	case 0x00:
		// Supported VPD pages.
		fillIn(command, []byte{peripheralByte(unit), 0x00, 0x00, 0x02, 0x00, 0x80})
	case 0x80:
		// Unit serial number.
		serial := []byte(unit.SerialNo)
		response := append(
			[]byte{peripheralByte(unit), 0x80, 0x00, byte(len(serial))},
			serial...)
		fillIn(command, response)
	default:
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}
	command.Status = SamStatGood
}

func peripheralByte(unit *LogicalUnit) byte {
	// Direct-access when the unit is reachable, unknown type with the
	// peripheral qualifier set otherwise.
	if unit.Store != nil {
		return 0x00
	}
	return 0x7f
}

func standardInquiry(unit *LogicalUnit) []byte {
	response := make([]byte, 36)
	response[0] = peripheralByte(unit)
	// Version: SPC-3
	response[2] = 0x05
	// Response data format 2
	response[3] = 0x02
	// Additional length
	response[4] = 36 - 5
	copy(response[8:16], padded(unit.VendorID, 8))
	copy(response[16:32], padded(unit.ProductID, 16))
	copy(response[32:36], padded(unit.ProductRev, 4))
	return response
}

func padded(value string, width int) []byte {
	out := bytes.Repeat([]byte{' '}, width)
	copy(out, value)
	return out
}

func executeReportLuns(target *target, command *bridge.EngineCommand) {
	if len(command.CDB) < 10 {
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}
	allocationLength := binary.BigEndian.Uint32(command.CDB[6:10])
	if allocationLength < 16 {
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}

	units := target.unitList()
	listLength := len(units) * 8
	lunZeroListed := false
	for _, unit := range units {
		if unit.Number == 0 {
			lunZeroListed = true
		}
	}
	if !lunZeroListed {
		listLength += 8
	}

	response := make([]byte, 0, 8+listLength)
	response = append(response,
		byte(listLength>>24), byte(listLength>>16), byte(listLength>>8), byte(listLength),
		0x00, 0x00, 0x00, 0x00)
	if !lunZeroListed {
		encoded := bridge.EncodeLUN(0)
		response = append(response, encoded[:]...)
	}
	for _, unit := range units {
		encoded := bridge.EncodeLUN(uint64(unit.Number))
		response = append(response, encoded[:]...)
	}
	if uint32(len(response)) > allocationLength {
		response = response[:allocationLength]
	}
	fillIn(command, response)
	command.Status = SamStatGood
}

func executeReadCapacity10(unit *LogicalUnit, command *bridge.EngineCommand) {
	if len(command.CDB) < 10 {
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}
	if (command.CDB[8]&0x1 == 0) &&
		(command.CDB[2]|command.CDB[3]|command.CDB[4]|command.CDB[5]) != 0 {
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}
	size := unit.Size >> unit.BlockShift
	response := make([]byte, 8)
	if size>>32 != 0 {
		binary.BigEndian.PutUint32(response, 0xffffffff)
	} else {
		binary.BigEndian.PutUint32(response, uint32(size-1))
	}
	binary.BigEndian.PutUint32(response[4:], uint32(1)<<unit.BlockShift)
	fillIn(command, response)
	command.Status = SamStatGood
}

func executeReadCapacity16(unit *LogicalUnit, command *bridge.EngineCommand) {
	size := unit.Size >> unit.BlockShift
	response := make([]byte, 32)
	binary.BigEndian.PutUint64(response, size-1)
	binary.BigEndian.PutUint32(response[8:], uint32(1)<<unit.BlockShift)
	fillIn(command, response)
	command.Status = SamStatGood
}

func readWriteOffset(cdb []byte) uint64 {
	switch CommandType(cdb[0]) {
	case Read10, Write10, SynchronizeCache10:
		return uint64(binary.BigEndian.Uint32(cdb[2:]))
	case Read16, Write16, SynchronizeCache16:
		return binary.BigEndian.Uint64(cdb[2:])
	default:
		return 0
	}
}

func readWriteCount(cdb []byte) uint32 {
	switch CommandType(cdb[0]) {
	case Read10, Write10, SynchronizeCache10:
		return uint32(binary.BigEndian.Uint16(cdb[7:]))
	case Read16, Write16, SynchronizeCache16:
		return binary.BigEndian.Uint32(cdb[10:])
	default:
		return 0
	}
}

func validateOffsetLength(transferLength, logicalBlockAddress, deviceSizeInBlocks uint64) bool {
	if transferLength != 0 {
		logicalBlockAddressOverflow := logicalBlockAddress+transferLength < logicalBlockAddress
		return !logicalBlockAddressOverflow &&
			logicalBlockAddress+transferLength <= deviceSizeInBlocks
	}
	return logicalBlockAddress < deviceSizeInBlocks
}

func executeRead(unit *LogicalUnit, command *bridge.EngineCommand) {
	log := logger.GetLogger()
	const readProtectBitMask = byte(0xe0)
	if minCDBLength(command.CDB) || command.CDB[1]&readProtectBitMask != 0 {
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}
	logicalBlockAddress := readWriteOffset(command.CDB)
	transferLength := readWriteCount(command.CDB)
	deviceSizeInBlocks := unit.Size >> unit.BlockShift
	if !validateOffsetLength(uint64(transferLength), logicalBlockAddress, deviceSizeInBlocks) {
		log.Warnf("read beyond device end: lba %d, blocks %d, size %d",
			logicalBlockAddress, transferLength, deviceSizeInBlocks)
		checkCondition(command, IllegalRequest, AscLbaOutOfRange)
		return
	}
	if command.InBuffer == nil {
		command.Status = SamStatGood
		return
	}

	offset := logicalBlockAddress << unit.BlockShift
	length := transferLength << unit.BlockShift
	if length > command.ExpectedLength {
		length = command.ExpectedLength
	}
	transferred, err := unit.Store.ReadAt(command.InBuffer.Data[:length], offset)
	if err != nil {
		log.Errorf("unit %d: read failed: %v", unit.Number, err)
		checkCondition(command, MediumError, AscReadError)
		return
	}
	command.Transferred = uint32(transferred)
	command.Status = SamStatGood
}

func executeWrite(unit *LogicalUnit, command *bridge.EngineCommand) {
	log := logger.GetLogger()
	const writeProtectBitMask = byte(0xe0)
	if minCDBLength(command.CDB) || command.CDB[1]&writeProtectBitMask != 0 {
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}
	logicalBlockAddress := readWriteOffset(command.CDB)
	transferLength := readWriteCount(command.CDB)
	deviceSizeInBlocks := unit.Size >> unit.BlockShift
	if !validateOffsetLength(uint64(transferLength), logicalBlockAddress, deviceSizeInBlocks) {
		log.Warnf("write beyond device end: lba %d, blocks %d, size %d",
			logicalBlockAddress, transferLength, deviceSizeInBlocks)
		checkCondition(command, IllegalRequest, AscLbaOutOfRange)
		return
	}
	if command.OutBuffer == nil {
		checkCondition(command, IllegalRequest, AscInvalidFieldInCdb)
		return
	}

	offset := logicalBlockAddress << unit.BlockShift
	length := transferLength << unit.BlockShift
	if length > command.ExpectedLength {
		length = command.ExpectedLength
	}
	transferred, err := unit.Store.WriteAt(command.OutBuffer.Data[:length], offset)
	if err != nil {
		log.Errorf("unit %d: write failed: %v", unit.Number, err)
		checkCondition(command, MediumError, AscWriteError)
		return
	}
	command.Transferred = uint32(transferred)
	command.Status = SamStatGood
}

func minCDBLength(cdb []byte) bool {
	switch CommandType(cdb[0]) {
	case Read16, Write16, SynchronizeCache16:
		return len(cdb) < 16
	default:
		return len(cdb) < 10
	}
}
