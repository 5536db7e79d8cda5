// Package protocol defines the newline-framed JSON wire protocol spoken
// between the dispatcher and its workers and clients. Every message is a
// single Envelope serialized to one line; payloads are JSON documents
// nested inside the envelope's Data field.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types exchanged on the worker endpoint.
const (
	TypeWorkerRegistration    = "WORKER_REGISTRATION"
	TypeWorkerRegistrationAck = "WORKER_REGISTRATION_ACK"
	TypeAIMoveRequest         = "AI_MOVE_REQUEST"
	TypeAIMoveResponse        = "AI_MOVE_RESPONSE"
	TypeValidateMoveRequest   = "VALIDATE_MOVE_REQUEST"
	TypeValidateMoveResponse  = "VALIDATE_MOVE_RESPONSE"
	TypeHealthCheck           = "HEALTH_CHECK"
	TypeHealthCheckResponse   = "HEALTH_CHECK_RESPONSE"
	TypePing                  = "PING"
	TypePong                  = "PONG"
	TypeErrorResponse         = "ERROR_RESPONSE"
)

// Message types exchanged on the client endpoint.
const (
	TypeLoginRequest  = "LOGIN_REQUEST"
	TypeLoginResponse = "LOGIN_RESPONSE"
	TypeMatchFound    = "MATCH_FOUND"
	TypeMoveRequest   = "MOVE_REQUEST"
	TypeMoveResponse  = "MOVE_RESPONSE"
	TypeBoardUpdate   = "BOARD_UPDATE"
	TypeGameOver      = "GAME_OVER"
)

// Status values carried by response envelopes.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// BoardSize is the fixed side length of the game grid.
const BoardSize = 15

// Board is a 15x15 grid of cell symbols. Empty string means unoccupied.
type Board [][]string

// NewBoard returns an empty board of the fixed size.
func NewBoard() Board {
	b := make(Board, BoardSize)
	for i := range b {
		b[i] = make([]string, BoardSize)
	}
	return b
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := make(Board, len(b))
	for i, row := range b {
		out[i] = make([]string, len(row))
		copy(out[i], row)
	}
	return out
}

// Envelope is the outer message record. Data carries the type-specific
// payload as a nested JSON document.
type Envelope struct {
	Type         string          `json:"Type"`
	RequestID    string          `json:"RequestId,omitempty"`
	Status       string          `json:"Status,omitempty"`
	Data         json.RawMessage `json:"Data,omitempty"`
	ErrorMessage string          `json:"ErrorMessage,omitempty"`
}

// NewEnvelope builds an envelope with the payload marshaled into Data.
// A nil payload leaves Data empty.
func NewEnvelope(msgType, requestID, status string, payload any) (Envelope, error) {
	env := Envelope{Type: msgType, RequestID: requestID, Status: status}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("protocol: cannot marshal %s payload: %w", msgType, err)
		}
		env.Data = data
	}
	return env, nil
}

// NewErrorResponse builds an ERROR_RESPONSE envelope. The requestID may be
// empty when the failing message could not be correlated.
func NewErrorResponse(requestID, message string) Envelope {
	return Envelope{
		Type:         TypeErrorResponse,
		RequestID:    requestID,
		Status:       StatusError,
		ErrorMessage: message,
	}
}

// DecodePayload unmarshals the envelope's Data into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("protocol: %s envelope has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("protocol: cannot decode %s payload: %w", e.Type, err)
	}
	return nil
}

// RegistrationPayload is carried by WORKER_REGISTRATION and its ack.
type RegistrationPayload struct {
	WorkerID     string   `json:"WorkerId"`
	Capabilities []string `json:"Capabilities,omitempty"`
}

// AIMovePayload asks a worker to compute the best move for a symbol.
type AIMovePayload struct {
	Board    Board  `json:"Board"`
	AISymbol string `json:"AISymbol"`
}

// AIMoveResult is the answer to an AI_MOVE_REQUEST. IsValid is false when
// no legal move exists (full board).
type AIMoveResult struct {
	Row          int    `json:"Row"`
	Col          int    `json:"Col"`
	IsValid      bool   `json:"IsValid"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

// ValidateMovePayload asks a worker to rule-check a move.
type ValidateMovePayload struct {
	Board        Board  `json:"Board"`
	Row          int    `json:"Row"`
	Col          int    `json:"Col"`
	PlayerSymbol string `json:"PlayerSymbol"`
}

// ValidateMoveResult is the answer to a VALIDATE_MOVE_REQUEST.
type ValidateMoveResult struct {
	IsValid      bool   `json:"IsValid"`
	IsWinning    bool   `json:"IsWinning"`
	IsDraw       bool   `json:"IsDraw"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

// HealthPayload is the answer to a HEALTH_CHECK.
type HealthPayload struct {
	WorkerID     string    `json:"WorkerId"`
	Status       string    `json:"Status"`
	IsRegistered bool      `json:"IsRegistered"`
	IsConnected  bool      `json:"IsConnected"`
	Timestamp    time.Time `json:"Timestamp"`
}

// PongPayload identifies which worker answered a PING.
type PongPayload struct {
	WorkerID string `json:"WorkerId"`
}

// LoginPayload is sent by a client to authenticate.
type LoginPayload struct {
	PlayerName string `json:"PlayerName"`
	VsComputer bool   `json:"VsComputer,omitempty"`
}

// LoginResult confirms authentication and echoes the assigned client id.
type LoginResult struct {
	ClientID   string `json:"ClientId"`
	PlayerName string `json:"PlayerName"`
}

// MatchFoundPayload tells a client its room is ready.
type MatchFoundPayload struct {
	RoomID       string `json:"RoomId"`
	OpponentName string `json:"OpponentName"`
	YourSymbol   string `json:"YourSymbol"`
	YourTurn     bool   `json:"YourTurn"`
}

// MovePayload is a client's move submission.
type MovePayload struct {
	Row int `json:"Row"`
	Col int `json:"Col"`
}

// MoveResult reports whether a submitted move was accepted.
type MoveResult struct {
	Accepted     bool   `json:"Accepted"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

// BoardUpdatePayload broadcasts the board after an accepted move.
type BoardUpdatePayload struct {
	Board    Board  `json:"Board"`
	LastRow  int    `json:"LastRow"`
	LastCol  int    `json:"LastCol"`
	LastBy   string `json:"LastBy"`
	NextTurn string `json:"NextTurn"`
	YourTurn bool   `json:"YourTurn"`
}

// Game-over outcomes delivered in GameOverPayload.
const (
	OutcomeWin                  = "WIN"
	OutcomeLoss                 = "LOSS"
	OutcomeDraw                 = "DRAW"
	OutcomeOpponentDisconnected = "OPPONENT_DISCONNECTED"
	OutcomeAborted              = "ABORTED"
)

// GameOverPayload ends a match for one client.
type GameOverPayload struct {
	RoomID  string `json:"RoomId"`
	Outcome string `json:"Outcome"`
	Winner  string `json:"Winner,omitempty"`
}
