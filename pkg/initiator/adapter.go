// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/

// Package initiator models the initiator-side virtual adapter: the
// in-process stand-in for a host bus adapter that a published session
// appears behind.
package initiator

import (
	"fmt"
	"sync"

	"scsibridge/pkg/logger"
)

// Adapter is a refcounted handle to one published virtual adapter. The
// publishing owner holds the initial reference; event dispatchers pin the
// adapter with TryAcquire for the duration of a notification. Close drops
// the owner reference and the adapter is destroyed once the count reaches
// zero.
type Adapter struct {
	name   string
	owner  any
	rescan func()

	mutex    sync.Mutex
	refcount int
	closed   bool

	rescans uint64
}

// Publish creates and registers a virtual adapter under the given name.
// The rescan callback runs on device-topology change notifications; a nil
// callback falls back to logging only.
func Publish(name string, owner any, rescan func()) (*Adapter, error) {
	if name == "" {
		return nil, fmt.Errorf("adapter name must not be empty")
	}
	adapter := &Adapter{
		name:     name,
		owner:    owner,
		rescan:   rescan,
		refcount: 1,
	}
	logger.GetLogger().Infof("published virtual adapter %s", name)
	return adapter, nil
}

func (adapter *Adapter) Name() string {
	return adapter.name
}

// Owner returns the object the adapter was published for.
func (adapter *Adapter) Owner() any {
	return adapter.owner
}

// TryAcquire takes an extra reference, failing once Close has been called.
func (adapter *Adapter) TryAcquire() bool {
	adapter.mutex.Lock()
	defer adapter.mutex.Unlock()
	if adapter.closed {
		return false
	}
	adapter.refcount++
	return true
}

// Release drops one reference taken by Publish or TryAcquire.
func (adapter *Adapter) Release() {
	adapter.mutex.Lock()
	adapter.refcount--
	remaining := adapter.refcount
	adapter.mutex.Unlock()

	if remaining < 0 {
		panic(fmt.Sprintf("adapter %s released more times than acquired", adapter.name))
	}
	if remaining == 0 {
		logger.GetLogger().Debugf("virtual adapter %s destroyed", adapter.name)
	}
}

// Close unpublishes the adapter and drops the owner reference. Pinned
// dispatchers keep the handle alive until they release; new TryAcquire
// calls fail from here on. Calling Close twice is a bug.
func (adapter *Adapter) Close() {
	adapter.mutex.Lock()
	if adapter.closed {
		adapter.mutex.Unlock()
		panic(fmt.Sprintf("adapter %s closed twice", adapter.name))
	}
	adapter.closed = true
	adapter.mutex.Unlock()

	logger.GetLogger().Infof("unpublished virtual adapter %s", adapter.name)
	adapter.Release()
}

// Rescan notifies the initiator side that the device topology behind the
// adapter changed.
func (adapter *Adapter) Rescan() {
	adapter.mutex.Lock()
	adapter.rescans++
	adapter.mutex.Unlock()

	if adapter.rescan != nil {
		adapter.rescan()
		return
	}
	logger.GetLogger().Infof("adapter %s: device rescan requested", adapter.name)
}

// RescanCount reports how many rescans were delivered so far.
func (adapter *Adapter) RescanCount() uint64 {
	adapter.mutex.Lock()
	defer adapter.mutex.Unlock()
	return adapter.rescans
}

// Closed reports whether the adapter has been unpublished.
func (adapter *Adapter) Closed() bool {
	adapter.mutex.Lock()
	defer adapter.mutex.Unlock()
	return adapter.closed
}
