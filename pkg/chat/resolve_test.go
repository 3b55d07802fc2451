package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/idrissimart/souk/pkg/auth"
)

type fakeAds map[string]string // adID -> ownerID

func (f fakeAds) OwnerOf(_ context.Context, adID string) (string, error) {
	owner, ok := f[adID]
	if !ok {
		return "", ErrAdNotFound
	}
	return owner, nil
}

func newTestResolver(t *testing.T, ads fakeAds) *RoomResolver {
	t.Helper()
	rooms := newTestRoomStore(t)
	r, err := NewRoomResolver(rooms, ads)
	require.NoError(t, err)
	return r
}

func TestResolveClientRoomSides(t *testing.T) {
	r := newTestResolver(t, fakeAds{"ad1": "pub1"})
	ctx := context.Background()

	// a buyer connects: buyer is the client side
	room, err := r.ResolveClientRoom(ctx, "ad1", auth.Identity{ID: "buyer1"})
	require.NoError(t, err)
	require.Equal(t, "pub1", room.PublisherID)
	require.Equal(t, "buyer1", room.ClientID)

	// the owner connects: publisher side, client slot unresolved
	ownerRoom, err := r.ResolveClientRoom(ctx, "ad1", auth.Identity{ID: "pub1"})
	require.NoError(t, err)
	require.Equal(t, "pub1", ownerRoom.PublisherID)
	require.Empty(t, ownerRoom.ClientID)
	require.NotEqual(t, room.ID, ownerRoom.ID)

	// same buyer again lands in the same room
	again, err := r.ResolveClientRoom(ctx, "ad1", auth.Identity{ID: "buyer1"})
	require.NoError(t, err)
	require.Equal(t, room.ID, again.ID)
}

func TestResolveClientRoomUnknownAd(t *testing.T) {
	r := newTestResolver(t, fakeAds{})
	_, err := r.ResolveClientRoom(context.Background(), "ghost", auth.Identity{ID: "u1"})
	require.ErrorIs(t, err, ErrAdNotFound)
}

func TestResolveAdminRoomAccess(t *testing.T) {
	r := newTestResolver(t, fakeAds{})
	ctx := context.Background()

	// the publisher may join their own support room
	room, err := r.ResolveAdminRoom(ctx, AdminRoomName("pub1"), auth.Identity{ID: "pub1"})
	require.NoError(t, err)
	require.Equal(t, "pub1", room.PublisherID)

	// staff may join anyone's
	same, err := r.ResolveAdminRoom(ctx, AdminRoomName("pub1"), auth.Identity{ID: "staff1", Staff: true})
	require.NoError(t, err)
	require.Equal(t, room.ID, same.ID)

	// anyone else may not
	_, err = r.ResolveAdminRoom(ctx, AdminRoomName("pub1"), auth.Identity{ID: "intruder"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestParseAdminRoomName(t *testing.T) {
	id, err := ParseAdminRoomName("admin_chat_pub42")
	require.NoError(t, err)
	require.Equal(t, "pub42", id)

	_, err = ParseAdminRoomName("admin_chat_")
	require.ErrorIs(t, err, ErrBadRoomName)
	_, err = ParseAdminRoomName("other_room")
	require.ErrorIs(t, err, ErrBadRoomName)
}
