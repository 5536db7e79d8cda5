package dispatch

import (
	"sync"

	"github.com/google/uuid"
)

// clientSession is the session manager's private record for one client.
type clientSession struct {
	id            ClientID
	link          Link
	playerName    string
	authenticated bool
	roomID        RoomID // empty while not in a room
}

// SessionManager tracks every connected client and its authentication
// state. Room membership is recorded here but owned by the RoomCoordinator.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[ClientID]*clientSession
	notifier *Notifier
}

// NewSessionManager returns an empty session manager.
func NewSessionManager(notifier *Notifier) *SessionManager {
	return &SessionManager{
		sessions: make(map[ClientID]*clientSession),
		notifier: notifier,
	}
}

// OnConnect admits a new client connection and assigns a fresh id.
func (m *SessionManager) OnConnect(link Link) ClientID {
	id := ClientID("client-" + uuid.NewString()[:8])

	m.mu.Lock()
	m.sessions[id] = &clientSession{id: id, link: link}
	total := len(m.sessions)
	m.mu.Unlock()

	m.notifier.Publish(ClientConnectedEvent{ClientID: id, TotalClients: total})
	return id
}

// Authenticate records the client's player name. Unauthenticated clients
// may not be placed into a room.
func (m *SessionManager) Authenticate(id ClientID, playerName string) bool {
	m.mu.Lock()
	s, exists := m.sessions[id]
	if !exists {
		m.mu.Unlock()
		return false
	}
	s.playerName = playerName
	s.authenticated = true
	m.mu.Unlock()

	m.notifier.Publish(ClientAuthenticatedEvent{ClientID: id, PlayerName: playerName})
	return true
}

// OnDisconnect removes a client session. Returns the room the client was
// in, if any, so the caller can have the room coordinator tear it down.
func (m *SessionManager) OnDisconnect(id ClientID) (roomID RoomID, existed bool) {
	m.mu.Lock()
	s, exists := m.sessions[id]
	if !exists {
		m.mu.Unlock()
		return "", false
	}
	roomID = s.roomID
	delete(m.sessions, id)
	total := len(m.sessions)
	m.mu.Unlock()

	m.notifier.Publish(ClientDisconnectedEvent{ClientID: id, TotalClients: total})
	return roomID, true
}

// DisconnectClient forces a client's socket closed. The connection handler
// observes the close and runs the normal OnDisconnect path, so session and
// room cleanup happen exactly once.
func (m *SessionManager) DisconnectClient(id ClientID) bool {
	m.mu.RLock()
	s, exists := m.sessions[id]
	m.mu.RUnlock()

	if !exists {
		return false
	}
	s.link.Close()
	return true
}

// Link returns the connection handle for a client.
func (m *SessionManager) Link(id ClientID) (Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, false
	}
	return s.link, true
}

// PlayerName resolves a client id to its authenticated name.
func (m *SessionManager) PlayerName(id ClientID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, exists := m.sessions[id]; exists {
		return s.playerName
	}
	return ""
}

// IsAuthenticated reports whether the client has presented a profile.
func (m *SessionManager) IsAuthenticated(id ClientID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	return exists && s.authenticated
}

// SetRoom records which room a client belongs to. Empty clears it.
func (m *SessionManager) SetRoom(id ClientID, roomID RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[id]; exists {
		s.roomID = roomID
	}
}

// ListClients returns a copy of every session record.
func (m *SessionManager) ListClients() []ClientSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ClientSnapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, ClientSnapshot{
			ID:            s.id,
			PlayerName:    s.playerName,
			Authenticated: s.authenticated,
		})
	}
	return out
}

// Count returns the number of connected clients.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Clear drops every session record. Connections are not touched; the
// caller closes them first.
func (m *SessionManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[ClientID]*clientSession)
}
