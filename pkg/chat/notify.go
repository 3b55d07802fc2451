package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/idrissimart/souk/pkg/auth"
)

// PublishNotification pushes an out-of-band notification frame to every
// connection the recipient currently has open.
func (h *Hub) PublishNotification(_ context.Context, userID string, data map[string]any) error {
	if h == nil {
		return errors.New("chat hub: hub is nil")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("chat hub: empty recipient")
	}
	pub := h.broker.Publisher()
	if pub == nil {
		return errors.New("chat hub: publisher is nil")
	}
	frame := map[string]any{
		"type":      FrameNotification,
		"data":      data,
		"timestamp": time.Now().UnixMilli(),
	}
	body, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "chat hub: marshal notification")
	}
	return pub.Publish(topicForUser(userID), message.NewMessage(uuid.NewString(), body))
}

// AttachNotifications binds a connection to the caller's notification topic.
// The channel only carries server-pushed `notification` frames plus an
// application-level ping/pong; other inbound frames are ignored.
func (h *Hub) AttachNotifications(conn Conn, ident auth.Identity) error {
	if h == nil {
		return errors.New("chat hub: hub is nil")
	}
	if conn == nil {
		return errors.New("chat hub: connection is nil")
	}
	if strings.TrimSpace(ident.ID) == "" {
		return errors.New("chat hub: identity is empty")
	}

	subCtx, cancel := context.WithCancel(h.baseCtx)
	topic := topicForUser(ident.ID)
	sub, err := h.broker.BuildSubscriber(subCtx, topic, "notify-"+uuid.NewString())
	if err != nil {
		cancel()
		return errors.Wrap(err, "chat hub: build notification subscriber")
	}
	ch, err := sub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return errors.Wrap(err, "chat hub: subscribe notifications")
	}

	nlog := h.logger.With().Str("user_id", ident.ID).Str("channel", "notifications").Logger()

	go func() {
		for msg := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				nlog.Debug().Err(err).Msg("notification write failed, closing")
				msg.Ack()
				cancel()
				_ = conn.Close()
				return
			}
			msg.Ack()
		}
	}()

	go func() {
		defer cancel()
		defer func() { _ = conn.Close() }()
		defer nlog.Info().Msg("notification channel closed")
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame InboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if frame.Type == FramePing {
				if err := conn.WriteMessage(websocket.TextMessage, pongFrameBytes()); err != nil {
					return
				}
			}
		}
	}()
	return nil
}
