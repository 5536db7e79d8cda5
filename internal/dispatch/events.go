package dispatch

// Event is a notification emitted by the dispatcher after a state
// transition has committed. Observers (a dashboard, tests) receive events
// through Notifier.Subscribe; the dispatcher makes no assumption about
// the execution context of handlers beyond "do not block for long".
type Event interface {
	dispatchEvent()
}

// WorkerConnectedEvent is emitted when a worker completes registration.
type WorkerConnectedEvent struct {
	WorkerID WorkerID
	Endpoint string
}

func (WorkerConnectedEvent) dispatchEvent() {}

// WorkerDisconnectedEvent is emitted when a worker's record is removed.
type WorkerDisconnectedEvent struct {
	WorkerID WorkerID
}

func (WorkerDisconnectedEvent) dispatchEvent() {}

// WorkerStatusEvent is emitted on every Idle/Busy transition.
type WorkerStatusEvent struct {
	WorkerID    WorkerID
	Status      WorkerStatus
	CurrentTask string
}

func (WorkerStatusEvent) dispatchEvent() {}

// ClientConnectedEvent is emitted when a client connection is admitted.
type ClientConnectedEvent struct {
	ClientID     ClientID
	TotalClients int
}

func (ClientConnectedEvent) dispatchEvent() {}

// ClientDisconnectedEvent is emitted when a client session is removed.
type ClientDisconnectedEvent struct {
	ClientID     ClientID
	TotalClients int
}

func (ClientDisconnectedEvent) dispatchEvent() {}

// ClientAuthenticatedEvent is emitted when a client presents a profile.
type ClientAuthenticatedEvent struct {
	ClientID   ClientID
	PlayerName string
}

func (ClientAuthenticatedEvent) dispatchEvent() {}

// StatsEvent carries aggregate counts after any membership change.
type StatsEvent struct {
	Stats Stats
}

func (StatsEvent) dispatchEvent() {}

// RoomUpdatedEvent signals that the active-room set changed.
type RoomUpdatedEvent struct{}

func (RoomUpdatedEvent) dispatchEvent() {}

// LogEvent mirrors a dispatcher log line for observers that render a
// log tail.
type LogEvent struct {
	Message string
}

func (LogEvent) dispatchEvent() {}
