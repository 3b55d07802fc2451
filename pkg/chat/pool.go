package chat

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/idrissimart/souk/pkg/auth"
)

// Conn is the subset of *websocket.Conn the pool and hub need. Tests use
// in-memory stubs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type member struct {
	conn     Conn
	identity auth.Identity
}

// ConnectionPool tracks the connections currently joined to one room and
// centralizes broadcasting so the hub's read loops stay small. Write failures
// drop the connection.
type ConnectionPool struct {
	roomID string
	mu     sync.Mutex
	conns  map[string]*member
}

func NewConnectionPool(roomID string) *ConnectionPool {
	return &ConnectionPool{roomID: roomID, conns: map[string]*member{}}
}

func (cp *ConnectionPool) Add(connID string, conn Conn, ident auth.Identity) {
	if cp == nil || conn == nil || connID == "" {
		return
	}
	cp.mu.Lock()
	cp.conns[connID] = &member{conn: conn, identity: ident}
	cp.mu.Unlock()
}

func (cp *ConnectionPool) Remove(connID string) {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	m := cp.conns[connID]
	delete(cp.conns, connID)
	cp.mu.Unlock()
	if m != nil {
		_ = m.conn.Close()
	}
}

func (cp *ConnectionPool) Broadcast(data []byte) {
	cp.BroadcastExcept("", data)
}

// BroadcastExcept writes to every member except exceptID (empty means none).
func (cp *ConnectionPool) BroadcastExcept(exceptID string, data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	for id, m := range cp.conns {
		if id == exceptID {
			continue
		}
		if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("component", "chat").Str("room_id", cp.roomID).Msg("ws broadcast failed, dropping connection")
			delete(cp.conns, id)
			_ = m.conn.Close()
		}
	}
	cp.mu.Unlock()
}

func (cp *ConnectionPool) SendTo(connID string, data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	m, ok := cp.conns[connID]
	if !ok {
		return
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("component", "chat").Str("room_id", cp.roomID).Msg("ws send failed, dropping connection")
		delete(cp.conns, connID)
		_ = m.conn.Close()
	}
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	for id, m := range cp.conns {
		_ = m.conn.Close()
		delete(cp.conns, id)
	}
	cp.mu.Unlock()
}
