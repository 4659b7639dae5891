package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

// job is the runtime's full bookkeeping record for one submitted dispatch,
// from enqueue through completion.
type job struct {
	id         core.ActionId
	request    DispatchRequest
	route      core.ExecRoute
	mutexKey   string
	completion chan DispatchOutput
	timeline   DispatchTimeline
	seq        uint64
}

// ReadyJob is a job the Runtime has handed to a worker for execution: its
// mutex key is marked busy and its slot is held until FinishJob is called.
type ReadyJob struct {
	r *Runtime
	j *job
}

func (rj *ReadyJob) ID() core.ActionId         { return rj.j.id }
func (rj *ReadyJob) Request() DispatchRequest  { return rj.j.request }
func (rj *ReadyJob) Route() core.ExecRoute     { return rj.j.route }
func (rj *ReadyJob) MutexKey() string          { return rj.j.mutexKey }
func (rj *ReadyJob) TaskID() string            { return rj.j.request.ToolCall.TaskID }
func (rj *ReadyJob) TakeCompletion() chan<- DispatchOutput {
	c := rj.j.completion
	rj.j.completion = nil
	return c
}

// Runtime is the scheduler's queueing core: a global priority heap of
// eligible jobs, a per-mutex-key FIFO for jobs waiting behind a busy key,
// and a concurrency gate capping how many jobs run at once.
type Runtime struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg Config
	seq uint64

	heap        jobHeap
	keyQueues   map[string][]*job
	keyBusy     map[string]bool
	jobs        map[core.ActionId]*job
	activeCount int
}

// NewRuntime builds a Runtime. A GlobalSlots of 0 or less is treated as 1.
func NewRuntime(cfg Config) *Runtime {
	if cfg.GlobalSlots < 1 {
		cfg.GlobalSlots = 1
	}
	r := &Runtime{
		cfg:       cfg,
		keyQueues: make(map[string][]*job),
		keyBusy:   make(map[string]bool),
		jobs:      make(map[core.ActionId]*job),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Enqueue admits a new job under mutexKey, returning its assigned action id
// and the channel its eventual DispatchOutput will arrive on. If the key is
// idle, the job becomes immediately eligible; otherwise it waits behind
// whatever else is queued for that key.
func (r *Runtime) Enqueue(mutexKey string, request DispatchRequest, route core.ExecRoute) (core.ActionId, <-chan DispatchOutput) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := core.NewActionId()
	r.seq++
	j := &job{
		id: id, request: request, route: route, mutexKey: mutexKey,
		completion: make(chan DispatchOutput, 1),
		timeline:   DispatchTimeline{EnqueuedAt: time.Now()},
		seq:        r.seq,
	}
	r.jobs[id] = j

	queue := r.keyQueues[mutexKey]
	if !r.keyBusy[mutexKey] && len(queue) == 0 {
		heap.Push(&r.heap, &pqEntry{actionID: id, priority: request.Options.Priority, seq: j.seq})
	} else {
		r.keyQueues[mutexKey] = append(queue, j)
	}
	r.cond.Broadcast()
	return id, j.completion
}

// NextJob blocks until a job is eligible to run and a concurrency slot is
// free, or ctx is cancelled.
func (r *Runtime) NextJob(ctx context.Context) (*ReadyJob, bool) {
	wake := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		case <-stop:
		}
		close(wake)
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.heap.Len() == 0 || r.activeCount >= r.cfg.GlobalSlots {
		if ctx.Err() != nil {
			return nil, false
		}
		r.cond.Wait()
	}

	entry := heap.Pop(&r.heap).(*pqEntry)
	j, ok := r.jobs[entry.actionID]
	if !ok {
		// Cancelled between becoming eligible and being popped.
		return nil, false
	}
	delete(r.jobs, entry.actionID)
	r.keyBusy[j.mutexKey] = true
	r.activeCount++
	now := time.Now()
	j.timeline.StartedAt = &now
	return &ReadyJob{r: r, j: j}, true
}

// FinishJob releases a concurrency slot and returns the job's final
// timeline. If another job is queued behind ready's mutex key, it is
// promoted straight to the eligible heap and the key stays marked busy;
// otherwise the key goes idle.
func (r *Runtime) FinishJob(ready *ReadyJob) DispatchTimeline {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	ready.j.timeline.FinishedAt = &now
	r.activeCount--

	if queue := r.keyQueues[ready.j.mutexKey]; len(queue) > 0 {
		next := queue[0]
		r.keyQueues[ready.j.mutexKey] = queue[1:]
		// The promoted job still owns this mutex key until it's popped and
		// finished in turn, so keyBusy stays true -- clearing it here would
		// let a concurrent Enqueue fast-path a second job onto the same key
		// while the promoted one is still sitting in the heap.
		heap.Push(&r.heap, &pqEntry{actionID: next.id, priority: next.request.Options.Priority, seq: next.seq})
	} else {
		delete(r.keyQueues, ready.j.mutexKey)
		r.keyBusy[ready.j.mutexKey] = false
	}
	r.cond.Broadcast()
	return ready.j.timeline
}

// Cancel removes a not-yet-started job by action id. Jobs already handed
// out via NextJob are no longer cancellable here; timeouts are the only
// in-flight termination primitive.
func (r *Runtime) Cancel(action core.ActionId) (DispatchRequest, core.ExecRoute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[action]
	if !ok {
		return DispatchRequest{}, core.ExecRoute{}, false
	}
	r.removeJobLocked(j)
	return j.request, j.route, true
}

// CancelCall removes a not-yet-started job by its caller-supplied call id.
func (r *Runtime) CancelCall(callID string) (core.ActionId, DispatchRequest, core.ExecRoute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.request.ToolCall.CallID == callID {
			r.removeJobLocked(j)
			return j.id, j.request, j.route, true
		}
	}
	return "", DispatchRequest{}, core.ExecRoute{}, false
}

// CancelTask removes every not-yet-started job owned by taskID.
func (r *Runtime) CancelTask(taskID string) []CancelledJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CancelledJob
	for _, j := range r.jobs {
		if j.request.ToolCall.TaskID == taskID {
			out = append(out, CancelledJob{ActionID: j.id, Request: j.request, Route: j.route})
		}
	}
	for _, c := range out {
		if j, ok := r.jobs[c.ActionID]; ok {
			r.removeJobLocked(j)
		}
	}
	return out
}

// removeJobLocked excises j from whichever structure currently holds it
// (the eligible heap or a per-key FIFO). Caller holds r.mu.
func (r *Runtime) removeJobLocked(j *job) {
	delete(r.jobs, j.id)

	for i, entry := range r.heap {
		if entry.actionID == j.id {
			heap.Remove(&r.heap, i)
			return
		}
	}
	if queue, ok := r.keyQueues[j.mutexKey]; ok {
		filtered := queue[:0]
		for _, q := range queue {
			if q.id != j.id {
				filtered = append(filtered, q)
			}
		}
		r.keyQueues[j.mutexKey] = filtered
	}
}

// Pending reports how many jobs are queued or eligible but not yet running.
func (r *Runtime) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// SlotsAvailable reports how many concurrency slots are currently free.
func (r *Runtime) SlotsAvailable() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.GlobalSlots - r.activeCount
}
