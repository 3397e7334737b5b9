// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import "sync"

// quiesceGate makes full shutdown mutually exclusive with every ordinary
// entry point. Ordinary operations hold it shared for the duration of the
// call; shutdown takes it exclusively once and never lets a new shared
// acquisition succeed afterwards.
type quiesceGate struct {
	rw sync.RWMutex
}

// tryAcquire takes the gate in shared mode. It fails, rather than blocks,
// once shutdown holds or is waiting for the exclusive side.
func (gate *quiesceGate) tryAcquire() bool {
	return gate.rw.TryRLock()
}

func (gate *quiesceGate) release() {
	gate.rw.RUnlock()
}

// acquireExclusive waits out the shared holders and latches the gate shut.
// There is no exclusive release: shutdown is terminal.
func (gate *quiesceGate) acquireExclusive() {
	gate.rw.Lock()
}
