package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/idrissimart/souk/pkg/auth"
	"github.com/idrissimart/souk/pkg/stream"
)

func topicForRoom(roomID string) string { return "room:" + roomID }
func topicForUser(userID string) string { return "notify:" + userID }

// Hub owns the live side of the chat protocol: per-room connection pools,
// the broker fan-out consumers, and the per-connection read loops. Durable
// state stays in the stores; the hub holds no message history.
type Hub struct {
	baseCtx  context.Context
	broker   stream.Broker
	rooms    *RoomStore
	messages *MessageStore
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*roomSession
}

type roomSession struct {
	room *ChatRoom
	pool *ConnectionPool
	stop context.CancelFunc
}

type HubConfig struct {
	BaseCtx  context.Context
	Broker   stream.Broker
	Rooms    *RoomStore
	Messages *MessageStore
}

func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.BaseCtx == nil {
		return nil, errors.New("chat hub: base context is nil")
	}
	if cfg.Broker == nil {
		return nil, errors.New("chat hub: broker is nil")
	}
	if cfg.Rooms == nil {
		return nil, errors.New("chat hub: room store is nil")
	}
	if cfg.Messages == nil {
		return nil, errors.New("chat hub: message store is nil")
	}
	return &Hub{
		baseCtx:  cfg.BaseCtx,
		broker:   cfg.Broker,
		rooms:    cfg.Rooms,
		messages: cfg.Messages,
		logger:   log.With().Str("component", "chat").Logger(),
		sessions: map[string]*roomSession{},
	}, nil
}

// AttachOptions tweaks per-room-kind behavior.
type AttachOptions struct {
	// TagRoles adds the admin|publisher role tag to message frames
	// (publisher-admin rooms).
	TagRoles bool
}

// Attach joins an authenticated connection to a room: replay recent history
// oldest-first, then serve frames until the transport closes.
func (h *Hub) Attach(ctx context.Context, room *ChatRoom, conn Conn, ident auth.Identity, opts AttachOptions) error {
	if h == nil {
		return errors.New("chat hub: hub is nil")
	}
	if room == nil || strings.TrimSpace(room.ID) == "" {
		return errors.New("chat hub: room is nil")
	}
	if conn == nil {
		return errors.New("chat hub: connection is nil")
	}

	sess, err := h.ensureSession(room)
	if err != nil {
		return err
	}
	connID := uuid.NewString()
	sess.pool.Add(connID, conn, ident)

	history, err := h.messages.ListRecent(ctx, room.ID, HistoryLimit(room.Kind))
	if err != nil {
		sess.pool.Remove(connID)
		return errors.Wrap(err, "chat hub: history replay")
	}
	for i := range history {
		frame := newMessageFrame(&history[i], h.roleFor(room, history[i].SenderID, opts))
		if b, err := json.Marshal(frame); err == nil {
			sess.pool.SendTo(connID, b)
		}
	}

	go h.readLoop(sess, connID, conn, ident, opts)
	return nil
}

// roleFor derives the role tag for a message frame in a publisher-admin room.
// Live frames use the sender's staff flag; replayed frames fall back to
// comparing against the room's publisher.
func (h *Hub) roleFor(room *ChatRoom, senderID string, opts AttachOptions) string {
	if !opts.TagRoles {
		return ""
	}
	if senderID == room.PublisherID {
		return "publisher"
	}
	return "admin"
}

func (h *Hub) readLoop(sess *roomSession, connID string, conn Conn, ident auth.Identity, opts AttachOptions) {
	room := sess.room
	wsLog := h.logger.With().Str("room_id", room.ID).Str("user_id", ident.ID).Logger()
	defer h.detach(sess, connID)
	defer wsLog.Info().Msg("ws disconnected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			wsLog.Debug().Err(err).Msg("ws read loop end")
			return
		}
		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			sess.pool.SendTo(connID, errorFrameBytes("invalid frame"))
			continue
		}

		switch frame.Type {
		case FrameMessage:
			h.handleMessage(sess, connID, ident, opts, frame, wsLog)
		case FrameTyping:
			typing := TypingFrame{Type: FrameTyping, UserID: ident.ID, UserName: ident.Name}
			if err := h.publishRoomEvent(room.ID, FrameTyping, connID, typing); err != nil {
				wsLog.Warn().Err(err).Msg("typing publish failed")
			}
		case FramePing:
			sess.pool.SendTo(connID, pongFrameBytes())
		default:
			sess.pool.SendTo(connID, errorFrameBytes("unknown frame type"))
		}
	}
}

func (h *Hub) handleMessage(sess *roomSession, connID string, ident auth.Identity, opts AttachOptions, frame InboundFrame, wsLog zerolog.Logger) {
	body := strings.TrimSpace(frame.Message)
	if body == "" {
		sess.pool.SendTo(connID, errorFrameBytes("empty message"))
		return
	}
	msg := &ChatMessage{
		RoomID:     sess.room.ID,
		SenderID:   ident.ID,
		SenderName: ident.Name,
		Body:       body,
	}
	if err := h.messages.Append(h.baseCtx, msg); err != nil {
		wsLog.Error().Err(err).Msg("message persist failed")
		sess.pool.SendTo(connID, errorFrameBytes("message not delivered"))
		return
	}
	role := ""
	if opts.TagRoles {
		role = "publisher"
		if ident.Staff {
			role = "admin"
		}
	}
	if err := h.publishRoomEvent(sess.room.ID, FrameMessage, "", newMessageFrame(msg, role)); err != nil {
		wsLog.Error().Err(err).Msg("message publish failed")
		sess.pool.SendTo(connID, errorFrameBytes("message not delivered"))
	}
}

func (h *Hub) publishRoomEvent(roomID, kind, originConn string, payload any) error {
	pub := h.broker.Publisher()
	if pub == nil {
		return errors.New("chat hub: publisher is nil")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "chat hub: marshal payload")
	}
	body, err := json.Marshal(roomEvent{Kind: kind, OriginConn: originConn, Payload: raw})
	if err != nil {
		return errors.Wrap(err, "chat hub: marshal event")
	}
	return pub.Publish(topicForRoom(roomID), message.NewMessage(uuid.NewString(), body))
}

// ensureSession returns the live session for a room, starting the broker
// fan-out consumer on first join.
func (h *Hub) ensureSession(room *ChatRoom) (*roomSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sess, ok := h.sessions[room.ID]; ok {
		return sess, nil
	}

	subCtx, cancel := context.WithCancel(h.baseCtx)
	topic := topicForRoom(room.ID)
	// The consumer name must be unique per process so replicas each get their
	// own consumer group; sharing one would split frames across replicas.
	sub, err := h.broker.BuildSubscriber(subCtx, topic, "fanout-"+uuid.NewString())
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "chat hub: build subscriber")
	}
	ch, err := sub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "chat hub: subscribe")
	}

	sess := &roomSession{room: room, pool: NewConnectionPool(room.ID), stop: cancel}
	h.sessions[room.ID] = sess
	go h.forward(sess, ch)
	h.logger.Info().Str("room_id", room.ID).Str("kind", string(room.Kind)).Msg("room session started")
	return sess, nil
}

// forward drains the room topic and fans frames out to the local pool.
func (h *Hub) forward(sess *roomSession, ch <-chan *message.Message) {
	for msg := range ch {
		var ev roomEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			h.logger.Warn().Err(err).Str("room_id", sess.room.ID).Msg("dropping undecodable room event")
			msg.Ack()
			continue
		}
		switch ev.Kind {
		case FrameTyping:
			sess.pool.BroadcastExcept(ev.OriginConn, ev.Payload)
		default:
			sess.pool.Broadcast(ev.Payload)
		}
		msg.Ack()
	}
	h.logger.Debug().Str("room_id", sess.room.ID).Msg("room forwarder stopped")
}

func (h *Hub) detach(sess *roomSession, connID string) {
	sess.pool.Remove(connID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if sess.pool.IsEmpty() {
		sess.stop()
		delete(h.sessions, sess.room.ID)
		h.logger.Info().Str("room_id", sess.room.ID).Msg("room session stopped")
	}
}

// Shutdown closes every live connection and stops all forwarders.
func (h *Hub) Shutdown() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sess := range h.sessions {
		sess.pool.CloseAll()
		sess.stop()
		delete(h.sessions, id)
	}
}
