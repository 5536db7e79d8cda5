// Package dispatch implements the dispatcher side of the compute-offload
// platform: the worker registry, the task dispatcher, the client session
// manager and the room coordinator, all coordinated by a single Server
// owning two TCP listening endpoints.
package dispatch

import (
	"time"

	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

// WorkerID uniquely identifies a registered worker. Declared by the worker
// itself and stable across reconnects.
type WorkerID string

// ClientID uniquely identifies a connected client. Assigned on connect.
type ClientID string

// RoomID uniquely identifies a match room.
type RoomID string

// WorkerStatus is the registry-side state of a worker.
type WorkerStatus int

const (
	WorkerIdle WorkerStatus = iota
	WorkerBusy
	WorkerDisconnected
)

// String returns a human-readable name for the status.
func (s WorkerStatus) String() string {
	switch s {
	case WorkerIdle:
		return "Idle"
	case WorkerBusy:
		return "Busy"
	case WorkerDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Link is the transport-neutral handle for one remote peer's connection.
// It lets the registry, dispatcher and coordinator talk to workers and
// clients without depending on net.Conn, which also keeps them testable.
type Link interface {
	// Send writes one envelope to the peer. Safe for concurrent use.
	Send(env protocol.Envelope) error

	// Close tears the connection down. The owning handler observes the
	// close as a read error and runs its normal disconnect path.
	Close()

	// RemoteAddr describes the peer endpoint for display.
	RemoteAddr() string
}

// WorkerSnapshot is a point-in-time copy of one worker's registry record.
type WorkerSnapshot struct {
	ID             WorkerID
	Endpoint       string
	Status         WorkerStatus
	CurrentTask    string
	TasksCompleted int
}

// ClientSnapshot is a point-in-time copy of one client session.
type ClientSnapshot struct {
	ID            ClientID
	PlayerName    string
	Authenticated bool
}

// RoomSnapshot is a point-in-time copy of one active room.
type RoomSnapshot struct {
	ID          RoomID
	Player1Name string
	Player2Name string
	StartTime   time.Time
}

// Duration returns how long the room has been running.
func (r RoomSnapshot) Duration() time.Duration {
	return time.Since(r.StartTime)
}

// Stats is an aggregate count snapshot for observers.
type Stats struct {
	Clients     int
	Workers     int
	ActiveRooms int
}

// MatchResultData is the outcome of a finished room, handed to a
// ResultSaver for persistence.
type MatchResultData struct {
	RoomID       string
	Player1Name  string
	Player2Name  string
	WinnerName   string
	EndReason    string
	DurationSecs int
}

// ResultSaver persists match outcomes. Implemented by the storage package;
// the coordinator only saves best-effort and never blocks on it.
type ResultSaver interface {
	SaveResult(data MatchResultData) error
}
