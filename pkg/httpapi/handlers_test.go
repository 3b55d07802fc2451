package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/idrissimart/souk/pkg/auth"
	"github.com/idrissimart/souk/pkg/chat"
	"github.com/idrissimart/souk/pkg/knowledge"
	"github.com/idrissimart/souk/pkg/otp"
	"github.com/idrissimart/souk/pkg/stream"
)

type fakeAds map[string]string // adID -> ownerID

func (f fakeAds) OwnerOf(_ context.Context, adID string) (string, error) {
	owner, ok := f[adID]
	if !ok {
		return "", chat.ErrAdNotFound
	}
	return owner, nil
}

type memCodes struct {
	mu       sync.Mutex
	codes    map[string]string
	attempts map[string]int
	last     string
}

func newMemCodes() *memCodes {
	return &memCodes{codes: map[string]string{}, attempts: map[string]int{}}
}

func (m *memCodes) SetCode(_ context.Context, phone, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[phone] = code
	delete(m.attempts, phone)
	m.last = code
	return nil
}

func (m *memCodes) GetCode(_ context.Context, phone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[phone], nil
}

func (m *memCodes) BumpAttempts(_ context.Context, phone string, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[phone]++
	return m.attempts[phone], nil
}

func (m *memCodes) Clear(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, phone)
	delete(m.attempts, phone)
	return nil
}

func (m *memCodes) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type testEnv struct {
	server    *Server
	jwt       *auth.JWTAuthenticator
	knowledge *knowledge.Store
	codes     *memCodes
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := func(suffix string) string {
		return "file:" + t.Name() + suffix + "?mode=memory&cache=shared&_busy_timeout=5000"
	}

	jwtAuth, err := auth.NewJWTAuthenticator("test-secret")
	require.NoError(t, err)

	kstore, err := knowledge.NewStore(dsn("-knowledge"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kstore.Close() })
	responder, err := knowledge.NewResponder(knowledge.ResponderConfig{Store: kstore})
	require.NoError(t, err)

	broker, err := stream.NewBroker(stream.Settings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = broker.Close() })

	rooms, err := chat.NewRoomStore(dsn("-rooms"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rooms.Close() })
	messages, err := chat.NewMessageStore(dsn("-messages"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = messages.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub, err := chat.NewHub(chat.HubConfig{BaseCtx: ctx, Broker: broker, Rooms: rooms, Messages: messages})
	require.NoError(t, err)
	t.Cleanup(hub.Shutdown)

	resolver, err := chat.NewRoomResolver(rooms, fakeAds{"ad1": "pub1"})
	require.NoError(t, err)

	codes := newMemCodes()
	otpSvc, err := otp.NewService(otp.ServiceConfig{Codes: codes, TTL: time.Minute, Digits: 6, MaxAttempts: 3})
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Auth:      jwtAuth,
		Responder: responder,
		Hub:       hub,
		Resolver:  resolver,
		OTP:       otpSvc,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, jwt: jwtAuth, knowledge: kstore, codes: codes}
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestChatbotMessageMatchesEntry(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.knowledge.CreateEntry(context.Background(), &knowledge.KnowledgeEntry{
		Question: "ما هو إدريسي مارت؟",
		Answer:   "إدريسي مارت هو سوق إلكتروني للإعلانات المبوبة",
		Category: knowledge.CategoryGeneral,
		Keywords: "سوق,منصة",
		Active:   true,
	}))

	rec := postJSON(t, env.server.Handler(), "/api/chatbot/message", `{"message":"ما هو إدريسي مارت؟"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.True(t, strings.HasPrefix(body["response"].(string), "إدريسي مارت هو سوق إلكتروني"))
	require.NotEmpty(t, body["session_id"])
	require.NotEmpty(t, body["conversation_id"])
	require.Equal(t, "question", body["intent"])
}

func TestChatbotMessageMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{not json`, `{"message":""}`, `{}`, `{"unexpected":1}`} {
		rec := postJSON(t, env.server.Handler(), "/api/chatbot/message", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		out := decodeBody(t, rec)
		errObj, ok := out["error"].(map[string]any)
		require.True(t, ok, "error must be a structured object")
		require.NotEmpty(t, errObj["code"])
		require.NotEmpty(t, errObj["message"])
	}
}

func TestChatbotFeedback(t *testing.T) {
	env := newTestEnv(t)

	// real conversation: success true
	rec := postJSON(t, env.server.Handler(), "/api/chatbot/message", `{"message":"مرحبا"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	convID := decodeBody(t, rec)["conversation_id"].(string)

	rec = postJSON(t, env.server.Handler(), "/api/chatbot/feedback",
		`{"conversation_id":"`+convID+`","is_helpful":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	require.Equal(t, true, out["success"])

	// unknown conversation: success false, still 200
	rec = postJSON(t, env.server.Handler(), "/api/chatbot/feedback",
		`{"conversation_id":"ghost","is_helpful":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeBody(t, rec)
	require.Equal(t, false, out["success"])
	require.NotEmpty(t, out["message"])
}

func TestOTPRequestVerifyFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.server.Handler(), "/api/otp/request", `{"phone":"+212600000001"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["success"])

	rec = postJSON(t, env.server.Handler(), "/api/otp/verify",
		`{"phone":"+212600000001","code":"`+env.codes.lastCode()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["success"])

	rec = postJSON(t, env.server.Handler(), "/api/otp/verify",
		`{"phone":"+212600000001","code":"000000"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestWebsocketRejectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)

	for _, path := range []string{"/ws/chat/ad1", "/ws/admin/admin_chat_pub1", "/ws/notifications"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}

func TestWebsocketUnknownAd(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)

	token, err := env.jwt.Mint(auth.Identity{ID: "buyer1"})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/ws/chat/ghost?token=" + token)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestWebsocketChatRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	dial := func(id string) *websocket.Conn {
		token, err := env.jwt.Mint(auth.Identity{ID: id, Name: id})
		require.NoError(t, err)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/chat/ad1?token="+token, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	buyer := dial("buyer1")
	require.NoError(t, buyer.WriteJSON(map[string]string{"type": "message", "message": "هل السلعة متوفرة؟"}))

	require.NoError(t, buyer.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, buyer.ReadJSON(&frame))
	require.Equal(t, "message", frame["type"])
	require.Equal(t, "هل السلعة متوفرة؟", frame["message"])
	require.Equal(t, "buyer1", frame["sender_id"])

	// a second joiner replays that message from history
	buyer2 := dial("buyer1")
	require.NoError(t, buyer2.SetReadDeadline(time.Now().Add(2*time.Second)))
	var replay map[string]any
	require.NoError(t, buyer2.ReadJSON(&replay))
	require.Equal(t, "هل السلعة متوفرة؟", replay["message"])
}
