// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package engine

import (
	"fmt"

	"scsibridge/pkg/bridge"
	"scsibridge/pkg/logger"
)

type unitNumbers [256]bool

func (available *unitNumbers) nextUnit() (byte, error) {
	for index, unitAvailable := range available {
		if !unitAvailable {
			continue
		}
		available[index] = false
		return byte(index), nil
	}
	return 0, fmt.Errorf(
		"can't have more than 256 logical " +
			"units allocated to a single target")
}

func (available *unitNumbers) deleteUnit(unitNumber byte) {
	available[unitNumber] = true
}

func (available *unitNumbers) clear() {
	for i := range available {
		available[i] = true
	}
}

const defaultBlockShift uint = 9

// LogicalUnit is one direct-access device behind a target.
type LogicalUnit struct {
	Number     byte
	Store      BackingStore
	Size       uint64
	BlockShift uint
	Online     bool

	VendorID   string
	ProductID  string
	ProductRev string
	SerialNo   string
}

func newLogicalUnit(store BackingStore, serial uint64) *LogicalUnit {
	return &LogicalUnit{
		Store:      store,
		Size:       store.Size(),
		BlockShift: defaultBlockShift,
		Online:     true,
		VendorID:   "BRIDGE",
		ProductID:  "SCSIBRIDGE",
		ProductRev: "0360",
		SerialNo:   fmt.Sprintf("scsibridge-beaf-%d", serial),
	}
}

// AttachUnit creates a memory-backed logical unit of the given size,
// assigns it the lowest free unit number and announces the topology
// change to every session as a unit attention.
func (engine *LocalEngine) AttachUnit(targetName string, sizeBytes uint64) (byte, error) {
	target, err := engine.findTarget(targetName)
	if err != nil {
		return 0, err
	}
	store, err := NewMemoryStore(sizeBytes)
	if err != nil {
		return 0, err
	}

	target.unitsMutex.Lock()
	number, err := target.availableUnits.nextUnit()
	if err != nil {
		target.unitsMutex.Unlock()
		return 0, err
	}
	unit := newLogicalUnit(store, uint64(number)+1000)
	unit.Number = number
	target.units[number] = unit
	target.unitsMutex.Unlock()

	logger.GetLogger().Infof("target %s: unit %d attached, %d bytes",
		targetName, number, sizeBytes)
	engine.reportUnitAttention(target, uint64(number))
	return number, nil
}

// DetachUnit removes the unit and announces the change.
func (engine *LocalEngine) DetachUnit(targetName string, number byte) error {
	target, err := engine.findTarget(targetName)
	if err != nil {
		return err
	}

	target.unitsMutex.Lock()
	unit, ok := target.units[number]
	if !ok {
		target.unitsMutex.Unlock()
		return fmt.Errorf("target %s: logical unit %d not found", targetName, number)
	}
	_ = unit.Store.Close()
	delete(target.units, number)
	target.availableUnits.deleteUnit(number)
	target.unitsMutex.Unlock()

	logger.GetLogger().Infof("target %s: unit %d detached", targetName, number)
	engine.reportUnitAttention(target, uint64(number))
	return nil
}

func (target *target) unit(number byte) *LogicalUnit {
	target.unitsMutex.Lock()
	defer target.unitsMutex.Unlock()
	return target.units[number]
}

func (target *target) unitList() []*LogicalUnit {
	target.unitsMutex.Lock()
	defer target.unitsMutex.Unlock()
	units := make([]*LogicalUnit, 0, len(target.units))
	for number := 0; number < len(target.availableUnits); number++ {
		if unit, ok := target.units[byte(number)]; ok {
			units = append(units, unit)
		}
	}
	return units
}

// reportUnitAttention delivers a unit attention event to every session of
// the target. A rejected event is retired right here so the acknowledgment
// is never lost.
func (engine *LocalEngine) reportUnitAttention(target *target, lun uint64) {
	log := logger.GetLogger()
	if target.template.ReportEvent == nil {
		return
	}

	target.sessionsMutex.Lock()
	sessions := make([]*session, len(target.sessions))
	copy(sessions, target.sessions)
	target.sessionsMutex.Unlock()

	for _, session := range sessions {
		event := bridge.NewAsyncEvent(bridge.EventUnitAttention, lun, nil)
		if err := target.template.ReportEvent(session, event); err != nil {
			log.Debugf("nexus %s: unit attention for lun %d not queued: %v",
				session.nexusID, lun, err)
			event.Done()
		}
	}
}
