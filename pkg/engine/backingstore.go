// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package engine

import (
	"fmt"
	"sync"
)

// BackingStore is the block storage behind one logical unit.
type BackingStore interface {
	ReadAt(buffer []byte, offset uint64) (int, error)
	WriteAt(buffer []byte, offset uint64) (int, error)
	Sync() error
	Size() uint64
	Close() error
}

// MemoryStore keeps the whole device image in one slice. Suits the
// loopback use case where the device exists to exercise the data path,
// not to persist anything.
type MemoryStore struct {
	mutex  sync.RWMutex
	data   []byte
	closed bool
}

func NewMemoryStore(sizeBytes uint64) (*MemoryStore, error) {
	if sizeBytes == 0 {
		return nil, fmt.Errorf("memory store size must not be zero")
	}
	if sizeBytes%(1<<defaultBlockShift) != 0 {
		return nil, fmt.Errorf(
			"memory store size %d is not a multiple of the block size", sizeBytes)
	}
	return &MemoryStore{data: make([]byte, sizeBytes)}, nil
}

func (store *MemoryStore) ReadAt(buffer []byte, offset uint64) (int, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	if store.closed {
		return 0, fmt.Errorf("store is closed")
	}
	if offset >= uint64(len(store.data)) {
		return 0, fmt.Errorf("read offset %d beyond device end", offset)
	}
	return copy(buffer, store.data[offset:]), nil
}

func (store *MemoryStore) WriteAt(buffer []byte, offset uint64) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.closed {
		return 0, fmt.Errorf("store is closed")
	}
	if offset >= uint64(len(store.data)) {
		return 0, fmt.Errorf("write offset %d beyond device end", offset)
	}
	return copy(store.data[offset:], buffer), nil
}

func (store *MemoryStore) Sync() error {
	return nil
}

func (store *MemoryStore) Size() uint64 {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return uint64(len(store.data))
}

func (store *MemoryStore) Close() error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.closed = true
	store.data = nil
	return nil
}
