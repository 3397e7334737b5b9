// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import "sync"

// workQueue executes queued jobs on a single goroutine, strictly FIFO.
// Flush blocks until every job queued before the call has finished, which
// is what the teardown path relies on to know no worker invocation is
// still dispatching.
type workQueue struct {
	mutex   sync.Mutex
	condVar *sync.Cond
	jobs    []func()
	running bool
	stopped bool
	done    chan struct{}
}

func newWorkQueue() *workQueue {
	queue := &workQueue{done: make(chan struct{})}
	queue.condVar = sync.NewCond(&queue.mutex)
	go queue.loop()
	return queue
}

func (queue *workQueue) loop() {
	queue.mutex.Lock()
	for {
		for len(queue.jobs) == 0 && !queue.stopped {
			queue.condVar.Wait()
		}
		if len(queue.jobs) == 0 && queue.stopped {
			break
		}
		job := queue.jobs[0]
		queue.jobs = queue.jobs[1:]
		queue.running = true
		queue.mutex.Unlock()
		job()
		queue.mutex.Lock()
		queue.running = false
		queue.condVar.Broadcast()
	}
	queue.mutex.Unlock()
	close(queue.done)
}

// Queue appends a job. Jobs queued after Stop are dropped.
func (queue *workQueue) Queue(job func()) {
	queue.mutex.Lock()
	if !queue.stopped {
		queue.jobs = append(queue.jobs, job)
		queue.condVar.Broadcast()
	}
	queue.mutex.Unlock()
}

// Flush waits until the queue is empty and no job is executing. Must not
// be called from a job running on this queue.
func (queue *workQueue) Flush() {
	queue.mutex.Lock()
	for len(queue.jobs) > 0 || queue.running {
		queue.condVar.Wait()
	}
	queue.mutex.Unlock()
}

// Stop drains the remaining jobs and terminates the worker goroutine.
func (queue *workQueue) Stop() {
	queue.mutex.Lock()
	queue.stopped = true
	queue.condVar.Broadcast()
	queue.mutex.Unlock()
	<-queue.done
}
