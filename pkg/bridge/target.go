// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import "sync/atomic"

// defaultScsiTransportVersion is reported until management overrides the
// field: SAS, the transport the synthesized identifiers pretend to be.
const defaultScsiTransportVersion = 0x0BE0

// Target is a named endpoint owning zero or more sessions.
type Target struct {
	name         string
	engineTarget EngineTarget

	// sessions and removing are protected by Bridge.mutex.
	sessions []*Session
	removing bool

	// Engine-reported transport version descriptors, overridable through
	// the management interface. Zero means "engine-selected default".
	scsiTransportVersion atomic.Uint32
	physTransportVersion atomic.Uint32
}

func (target *Target) Name() string {
	return target.name
}

// ScsiTransportVersion returns the configured value, or the SAS default
// while unset.
func (target *Target) ScsiTransportVersion() uint16 {
	value := uint16(target.scsiTransportVersion.Load())
	if value == 0 {
		return defaultScsiTransportVersion
	}
	return value
}

func (target *Target) SetScsiTransportVersion(version uint16) {
	target.scsiTransportVersion.Store(uint32(version))
}

func (target *Target) PhysTransportVersion() uint16 {
	return uint16(target.physTransportVersion.Load())
}

func (target *Target) SetPhysTransportVersion(version uint16) {
	target.physTransportVersion.Store(uint32(version))
}

// Transport-version query slots handed to the engine. New sessions cannot
// be created before the target priv is set, so the assertion is safe.
func scsiTransportVersionOf(engineTarget EngineTarget) uint16 {
	target, ok := engineTarget.Priv().(*Target)
	if !ok {
		return defaultScsiTransportVersion
	}
	return target.ScsiTransportVersion()
}

func physTransportVersionOf(engineTarget EngineTarget) uint16 {
	target, ok := engineTarget.Priv().(*Target)
	if !ok {
		return 0
	}
	return target.PhysTransportVersion()
}
