// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkQueueRunsJobsInOrder(t *testing.T) {
	queue := newWorkQueue()
	defer queue.Stop()

	var order []int
	for index := 0; index < 5; index++ {
		index := index
		queue.Queue(func() { order = append(order, index) })
	}
	queue.Flush()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestWorkQueueFlushWaitsForRunningJob(t *testing.T) {
	queue := newWorkQueue()
	defer queue.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	finished := false
	queue.Queue(func() {
		close(started)
		<-release
		finished = true
	})
	<-started
	go close(release)
	queue.Flush()
	require.True(t, finished)
}

func TestWorkQueueStopDrainsRemainingJobs(t *testing.T) {
	queue := newWorkQueue()
	count := 0
	for index := 0; index < 10; index++ {
		queue.Queue(func() { count++ })
	}
	queue.Stop()
	require.Equal(t, 10, count)
}

func TestWorkQueueDropsJobsAfterStop(t *testing.T) {
	queue := newWorkQueue()
	queue.Stop()
	queue.Queue(func() { t.Error("job must not run after stop") })
	queue.Flush()
}
