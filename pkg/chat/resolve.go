package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/idrissimart/souk/pkg/auth"
)

// AdminRoomPrefix is the naming convention for publisher-admin rooms: the
// room name fully determines the target publisher.
const AdminRoomPrefix = "admin_chat_"

var (
	ErrAdNotFound  = errors.New("chat: ad not found")
	ErrForbidden   = errors.New("chat: identity may not join this room")
	ErrBadRoomName = errors.New("chat: malformed admin room name")
)

// AdminRoomName builds the canonical room name for a publisher's support room.
func AdminRoomName(publisherID string) string {
	return AdminRoomPrefix + publisherID
}

// ParseAdminRoomName extracts the publisher id from an admin room name.
func ParseAdminRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, AdminRoomPrefix) {
		return "", ErrBadRoomName
	}
	publisherID := strings.TrimPrefix(name, AdminRoomPrefix)
	if publisherID == "" {
		return "", ErrBadRoomName
	}
	return publisherID, nil
}

// AdDirectory is the slice of the ads catalogue room resolution needs.
type AdDirectory interface {
	OwnerOf(ctx context.Context, adID string) (string, error)
}

// RoomResolver maps a connection's target (ad id or admin room name) plus the
// connecting identity onto a durable room.
type RoomResolver struct {
	rooms *RoomStore
	ads   AdDirectory
}

func NewRoomResolver(rooms *RoomStore, ads AdDirectory) (*RoomResolver, error) {
	if rooms == nil {
		return nil, errors.New("chat: room store is nil")
	}
	if ads == nil {
		return nil, errors.New("chat: ad directory is nil")
	}
	return &RoomResolver{rooms: rooms, ads: ads}, nil
}

// ResolveClientRoom resolves the publisher-client room for an ad. The ad's
// owner is always the publisher side; any other identity is the client side.
// When the owner connects before any client, the client slot stays empty.
func (r *RoomResolver) ResolveClientRoom(ctx context.Context, adID string, ident auth.Identity) (*ChatRoom, error) {
	if r == nil || r.rooms == nil || r.ads == nil {
		return nil, errors.New("chat: resolver is not initialized")
	}
	owner, err := r.ads.OwnerOf(ctx, adID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(owner) == "" {
		return nil, ErrAdNotFound
	}
	clientID := ident.ID
	if ident.ID == owner {
		clientID = ""
	}
	return r.rooms.GetOrCreatePublisherClient(ctx, adID, owner, clientID)
}

// ResolveAdminRoom resolves the publisher-admin room named by the connection
// path. Only the publisher themselves or a staff identity may join.
func (r *RoomResolver) ResolveAdminRoom(ctx context.Context, roomName string, ident auth.Identity) (*ChatRoom, error) {
	if r == nil || r.rooms == nil {
		return nil, errors.New("chat: resolver is not initialized")
	}
	publisherID, err := ParseAdminRoomName(roomName)
	if err != nil {
		return nil, err
	}
	if ident.ID != publisherID && !ident.Staff {
		return nil, ErrForbidden
	}
	return r.rooms.GetOrCreatePublisherAdmin(ctx, publisherID)
}
