package chat

import "time"

// RoomKind discriminates the two durable room shapes.
type RoomKind string

const (
	RoomPublisherClient RoomKind = "publisher_client"
	RoomPublisherAdmin  RoomKind = "publisher_admin"
)

// History replay sizes per room kind.
const (
	historyPublisherClient = 50
	historyPublisherAdmin  = 100
)

// HistoryLimit returns how many recent messages a joining connection replays.
func HistoryLimit(kind RoomKind) int {
	if kind == RoomPublisherAdmin {
		return historyPublisherAdmin
	}
	return historyPublisherClient
}

// ChatRoom groups messages between a fixed pair of participants. At most one
// room exists per (ad, client) pair for publisher-client rooms and one per
// publisher for publisher-admin rooms; the store's unique indexes enforce it.
type ChatRoom struct {
	ID          string
	AdID        string // empty for publisher_admin rooms
	PublisherID string
	ClientID    string // empty until a distinct client connects
	Kind        RoomKind
	CreatedAt   time.Time
}

// ChatMessage is one immutable entry in a room's durable log.
type ChatMessage struct {
	ID         string
	RoomID     string
	SenderID   string
	SenderName string
	Body       string
	Read       bool
	CreatedAt  time.Time
}
