package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/idrissimart/souk/pkg/auth"
	"github.com/idrissimart/souk/pkg/chat"
)

// handleClientRoomWS joins the caller to the buyer/seller room for an ad.
// Authentication and room resolution both happen BEFORE the upgrade so a
// rejected caller gets a plain HTTP status, not a half-open socket.
func (s *Server) handleClientRoomWS(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "a valid token is required")
		return
	}

	adID := chi.URLParam(r, "adID")
	room, err := s.resolver.ResolveClientRoom(r.Context(), adID, ident)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("ad_id", adID).Msg("websocket upgrade failed")
		return
	}
	if err := s.hub.Attach(r.Context(), room, conn, ident, chat.AttachOptions{}); err != nil {
		s.logger.Error().Err(err).Str("room_id", room.ID).Msg("attach failed")
		_ = conn.Close()
	}
}

// handleAdminRoomWS joins the caller to a publisher's support room. Messages
// in these rooms carry a role tag so the client UI can style staff replies.
func (s *Server) handleAdminRoomWS(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "a valid token is required")
		return
	}

	roomName := chi.URLParam(r, "room")
	room, err := s.resolver.ResolveAdminRoom(r.Context(), roomName, ident)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("room", roomName).Msg("websocket upgrade failed")
		return
	}
	if err := s.hub.Attach(r.Context(), room, conn, ident, chat.AttachOptions{TagRoles: true}); err != nil {
		s.logger.Error().Err(err).Str("room_id", room.ID).Msg("attach failed")
		_ = conn.Close()
	}
}

func (s *Server) handleNotificationsWS(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "a valid token is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", ident.ID).Msg("websocket upgrade failed")
		return
	}
	if err := s.hub.AttachNotifications(conn, ident); err != nil {
		s.logger.Error().Err(err).Str("user_id", ident.ID).Msg("attach notifications failed")
		_ = conn.Close()
	}
}

func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrAdNotFound):
		writeError(w, http.StatusNotFound, "ad_not_found", "no such ad")
	case errors.Is(err, chat.ErrBadRoomName):
		writeError(w, http.StatusBadRequest, "bad_room_name", "malformed room name")
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "you may not join this room")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "a valid token is required")
	default:
		s.logger.Error().Err(err).Msg("room resolution failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not resolve the room")
	}
}
