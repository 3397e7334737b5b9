// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"fmt"
	"sync/atomic"
)

const (
	Version     = "3.6.0"
	versionDate = "20260823"
)

// Some statistics.
type Stats struct {
	aborts       atomic.Uint64
	deviceResets atomic.Uint64
	targetResets atomic.Uint64
}

type StatsSnapshot struct {
	Aborts       uint64
	DeviceResets uint64
	TargetResets uint64
}

func (bridge *Bridge) Stats() StatsSnapshot {
	return StatsSnapshot{
		Aborts:       bridge.stats.aborts.Load(),
		DeviceResets: bridge.stats.deviceResets.Load(),
		TargetResets: bridge.stats.targetResets.Load(),
	}
}

func VersionString() string {
	return fmt.Sprintf("%s %s/%s", AdapterName, Version, versionDate)
}
