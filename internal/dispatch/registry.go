package dispatch

import "sync"

// worker is the registry's private record for one registered worker.
type worker struct {
	id             WorkerID
	endpoint       string
	link           Link
	status         WorkerStatus
	currentTask    string
	tasksCompleted int
	pendingRequest string // outstanding request id, empty when idle
}

// WorkerRegistry tracks every registered worker's identity, status and
// pending task. All mutation happens under one mutex; snapshots are
// copied out so observers never hold the lock.
type WorkerRegistry struct {
	mu      sync.RWMutex
	workers map[WorkerID]*worker
	order   []WorkerID // registration order, for deterministic selection
	cursor  int        // round-robin position into order
}

// NewWorkerRegistry returns an empty registry.
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{
		workers: make(map[WorkerID]*worker),
	}
}

// Register admits a worker. A duplicate registration with the same id is
// accepted idempotently: the record is kept (tasksCompleted survives a
// reconnect) and the caller re-acks, but the link and endpoint are updated
// so a reconnecting worker takes over its old identity. Returns true when
// the worker is new.
func (r *WorkerRegistry) Register(id WorkerID, endpoint string, link Link) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, exists := r.workers[id]; exists {
		w.link = link
		w.endpoint = endpoint
		return false
	}

	r.workers[id] = &worker{
		id:       id,
		endpoint: endpoint,
		link:     link,
		status:   WorkerIdle,
	}
	r.order = append(r.order, id)
	return true
}

// Remove deletes a worker's record and returns its outstanding request id
// (empty if it was idle) so the caller can fail the pending task back to
// its originator. Returns false when the id is unknown.
func (r *WorkerRegistry) Remove(id WorkerID) (pendingRequest string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[id]
	if !exists {
		return "", false
	}

	return r.removeLocked(id, w)
}

// RemoveIfLink removes a worker only when its current record still points
// at the given link. A handler for a superseded connection therefore
// cannot tear down the record a reconnected worker now owns.
func (r *WorkerRegistry) RemoveIfLink(id WorkerID, link Link) (pendingRequest string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[id]
	if !exists || w.link != link {
		return "", false
	}
	return r.removeLocked(id, w)
}

// removeLocked deletes the record. Caller holds r.mu.
func (r *WorkerRegistry) removeLocked(id WorkerID, w *worker) (string, bool) {
	pendingRequest := w.pendingRequest
	delete(r.workers, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			if r.cursor > i {
				r.cursor--
			}
			break
		}
	}
	return pendingRequest, true
}

// PickAvailable selects an idle worker and atomically transitions it to
// Busy for the given request. Selection is round-robin over registration
// order so simultaneous dispatches spread across idle workers
// deterministically. Returns false when no worker is idle.
func (r *WorkerRegistry) PickAvailable(requestID, taskDesc string) (WorkerID, Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.order)
	for i := 0; i < n; i++ {
		id := r.order[(r.cursor+i)%n]
		w := r.workers[id]
		if w == nil || w.status != WorkerIdle {
			continue
		}
		r.cursor = (r.cursor + i + 1) % n
		w.status = WorkerBusy
		w.currentTask = taskDesc
		w.pendingRequest = requestID
		return id, w.link, true
	}
	return "", nil, false
}

// MarkIdle completes a worker's task. The tasksCompleted counter is
// incremented only on success. Returns false when the id is unknown.
func (r *WorkerRegistry) MarkIdle(id WorkerID, success bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[id]
	if !exists {
		return false
	}

	w.status = WorkerIdle
	w.currentTask = ""
	w.pendingRequest = ""
	if success {
		w.tasksCompleted++
	}
	return true
}

// Link returns the connection handle for a worker.
func (r *WorkerRegistry) Link(id WorkerID) (Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.workers[id]
	if !exists {
		return nil, false
	}
	return w.link, true
}

// Snapshot returns the current registry record for a worker.
func (r *WorkerRegistry) Snapshot(id WorkerID) (WorkerSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.workers[id]
	if !exists {
		return WorkerSnapshot{}, false
	}
	return snapshotOf(w), true
}

// ListWorkers returns a copy of every worker record, in registration order.
func (r *WorkerRegistry) ListWorkers() []WorkerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkerSnapshot, 0, len(r.order))
	for _, id := range r.order {
		if w, exists := r.workers[id]; exists {
			out = append(out, snapshotOf(w))
		}
	}
	return out
}

// Count returns the number of registered workers.
func (r *WorkerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Clear drops every record. Connections are not touched; the caller is
// responsible for closing them first.
func (r *WorkerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = make(map[WorkerID]*worker)
	r.order = nil
	r.cursor = 0
}

func snapshotOf(w *worker) WorkerSnapshot {
	return WorkerSnapshot{
		ID:             w.id,
		Endpoint:       w.endpoint,
		Status:         w.status,
		CurrentTask:    w.currentTask,
		TasksCompleted: w.tasksCompleted,
	}
}
