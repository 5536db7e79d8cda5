package dispatch

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

// TaskStatus classifies the outcome of a task submission.
type TaskStatus int

const (
	// TaskOK means the worker answered with a well-formed result.
	TaskOK TaskStatus = iota

	// TaskUnavailable means no idle worker existed at submission time.
	// The caller decides whether and when to retry.
	TaskUnavailable

	// TaskFailed means the task was dispatched but did not produce a
	// usable result: worker error, disconnect, or deadline exceeded.
	TaskFailed
)

// TaskDispatcher routes task requests to available workers and correlates
// their responses back to the submitting caller by request id.
type TaskDispatcher struct {
	registry *WorkerRegistry
	pending  *pendingTable
	notifier *Notifier
	logger   *log.Logger
	timeout  time.Duration
}

// NewTaskDispatcher wires a dispatcher over the given registry.
func NewTaskDispatcher(registry *WorkerRegistry, notifier *Notifier, logger *log.Logger, timeout time.Duration) *TaskDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TaskDispatcher{
		registry: registry,
		pending:  newPendingTable(),
		notifier: notifier,
		logger:   logger,
		timeout:  timeout,
	}
}

// SubmitAIMove offloads a best-move search. Returns the chosen cell on
// TaskOK; errText carries the worker-supplied message on TaskFailed.
func (d *TaskDispatcher) SubmitAIMove(board protocol.Board, symbol string) (row, col int, status TaskStatus, errText string) {
	payload := protocol.AIMovePayload{Board: board, AISymbol: symbol}
	env, ok, errText := d.submit(protocol.TypeAIMoveRequest, "AI move ("+symbol+")", payload)
	if !ok {
		if errText == "" {
			return 0, 0, TaskUnavailable, ""
		}
		return 0, 0, TaskFailed, errText
	}

	var result protocol.AIMoveResult
	if err := env.DecodePayload(&result); err != nil {
		return 0, 0, TaskFailed, err.Error()
	}
	if !result.IsValid {
		return 0, 0, TaskFailed, result.ErrorMessage
	}
	return result.Row, result.Col, TaskOK, ""
}

// SubmitValidateMove offloads a rule check for one candidate move.
func (d *TaskDispatcher) SubmitValidateMove(board protocol.Board, row, col int, symbol string) (result protocol.ValidateMoveResult, status TaskStatus, errText string) {
	payload := protocol.ValidateMovePayload{Board: board, Row: row, Col: col, PlayerSymbol: symbol}
	env, ok, errText := d.submit(protocol.TypeValidateMoveRequest, "Validate move", payload)
	if !ok {
		if errText == "" {
			return result, TaskUnavailable, ""
		}
		return result, TaskFailed, errText
	}

	if err := env.DecodePayload(&result); err != nil {
		return result, TaskFailed, err.Error()
	}
	return result, TaskOK, ""
}

// submit picks a worker, sends the request and waits for the correlated
// response or the deadline. ok=false with empty errText means no worker
// was available; ok=false with errText set means the task failed.
func (d *TaskDispatcher) submit(msgType, taskDesc string, payload any) (resp protocol.Envelope, ok bool, errText string) {
	requestID := uuid.NewString()

	workerID, link, found := d.registry.PickAvailable(requestID, taskDesc)
	if !found {
		return protocol.Envelope{}, false, ""
	}
	d.notifier.Publish(WorkerStatusEvent{WorkerID: workerID, Status: WorkerBusy, CurrentTask: taskDesc})

	p := d.pending.add(requestID, workerID, taskDesc)

	env, err := protocol.NewEnvelope(msgType, requestID, "", payload)
	if err != nil {
		d.pending.remove(requestID)
		d.markIdle(workerID, false)
		return protocol.Envelope{}, false, err.Error()
	}

	if err := link.Send(env); err != nil {
		d.pending.remove(requestID)
		d.markIdle(workerID, false)
		d.logger.Warn("cannot send task to worker", "worker", workerID, "error", err)
		return protocol.Envelope{}, false, "worker write failed: " + err.Error()
	}

	select {
	case resp = <-p.reply:
		// The resolver already settled the worker's status.
		if resp.Status == protocol.StatusError || resp.Type == protocol.TypeErrorResponse {
			msg := resp.ErrorMessage
			if msg == "" {
				msg = "worker reported an error"
			}
			return protocol.Envelope{}, false, msg
		}
		return resp, true, ""

	case <-time.After(d.timeout):
		d.pending.remove(requestID)
		d.logger.Warn("task timed out, disconnecting worker",
			"request", requestID, "worker", workerID, "timeout", d.timeout)
		// The close unblocks the worker's connection handler, which runs
		// the registry's normal disconnect transition.
		link.Close()
		return protocol.Envelope{}, false, "task timed out"
	}
}

// HandleResponse routes an inbound worker response to its waiter.
// Responses with no matching pending entry are logged and discarded.
func (d *TaskDispatcher) HandleResponse(env protocol.Envelope) {
	if env.RequestID == "" {
		d.logger.Warn("discarding response without request id", "type", env.Type)
		return
	}

	workerID, matched := d.pending.resolve(env.RequestID, env)
	if !matched {
		d.logger.Info("discarding unmatched response", "type", env.Type, "request", env.RequestID)
		return
	}

	d.markIdle(workerID, env.Status == protocol.StatusSuccess)
}

// FailWorker resolves the pending request held by a disconnecting worker,
// if any, so its caller receives a terminal failure.
func (d *TaskDispatcher) FailWorker(workerID WorkerID, reason string) {
	if requestID, failed := d.pending.failWorker(workerID, reason); failed {
		d.logger.Warn("failed pending task back to caller",
			"worker", workerID, "request", requestID, "reason", reason)
	}
}

// PendingCount reports the number of in-flight tasks.
func (d *TaskDispatcher) PendingCount() int {
	return d.pending.size()
}

// Clear fails every in-flight task. Used on dispatcher shutdown/restart.
func (d *TaskDispatcher) Clear() {
	d.pending.clear("dispatcher shutting down")
}

func (d *TaskDispatcher) markIdle(workerID WorkerID, success bool) {
	if d.registry.MarkIdle(workerID, success) {
		d.notifier.Publish(WorkerStatusEvent{WorkerID: workerID, Status: WorkerIdle})
	}
}
