package otp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memCodeStore struct {
	mu       sync.Mutex
	codes    map[string]string
	expires  map[string]time.Time
	attempts map[string]int
}

var _ CodeStore = &memCodeStore{}

func newMemCodeStore() *memCodeStore {
	return &memCodeStore{
		codes:    map[string]string{},
		expires:  map[string]time.Time{},
		attempts: map[string]int{},
	}
}

func (m *memCodeStore) SetCode(_ context.Context, phone, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[phone] = code
	m.expires[phone] = time.Now().Add(ttl)
	delete(m.attempts, phone)
	return nil
}

func (m *memCodeStore) GetCode(_ context.Context, phone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Now().After(m.expires[phone]) {
		return "", nil
	}
	return m.codes[phone], nil
}

func (m *memCodeStore) BumpAttempts(_ context.Context, phone string, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[phone]++
	return m.attempts[phone], nil
}

func (m *memCodeStore) Clear(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, phone)
	delete(m.expires, phone)
	delete(m.attempts, phone)
	return nil
}

type captureSender struct {
	mu   sync.Mutex
	last string
}

func (c *captureSender) Send(_ context.Context, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = body
	return nil
}

func (c *captureSender) code(t *testing.T, digits int) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.GreaterOrEqual(t, len(c.last), digits)
	return c.last[len(c.last)-digits:]
}

func newTestService(t *testing.T) (*Service, *memCodeStore, *captureSender) {
	t.Helper()
	codes := newMemCodeStore()
	sender := &captureSender{}
	svc, err := NewService(ServiceConfig{Codes: codes, Sender: sender, TTL: time.Minute, Digits: 6, MaxAttempts: 3})
	require.NoError(t, err)
	return svc, codes, sender
}

func TestRequestThenVerify(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, "+212600000001"))
	code := sender.code(t, 6)

	ok, err := svc.Verify(ctx, "+212600000001", code)
	require.NoError(t, err)
	require.True(t, ok)

	// a code is single-use
	ok, err = svc.Verify(ctx, "+212600000001", code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyWrongCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, "+212600000002"))
	ok, err := svc.Verify(ctx, "+212600000002", "000000")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyAttemptCap(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, "+212600000003"))
	code := sender.code(t, 6)

	for i := 0; i < 3; i++ {
		ok, err := svc.Verify(ctx, "+212600000003", "999999")
		require.NoError(t, err)
		require.False(t, ok)
	}

	// the cap burns the code even when the right one finally shows up
	ok, err := svc.Verify(ctx, "+212600000003", code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewRequestReplacesPendingCode(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, "+212600000004"))
	first := sender.code(t, 6)
	require.NoError(t, svc.Request(ctx, "+212600000004"))
	second := sender.code(t, 6)

	if first != second {
		ok, err := svc.Verify(ctx, "+212600000004", first)
		require.NoError(t, err)
		require.False(t, ok)
	}
	ok, err := svc.Verify(ctx, "+212600000004", second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyExpiredCode(t *testing.T) {
	codes := newMemCodeStore()
	sender := &captureSender{}
	svc, err := NewService(ServiceConfig{Codes: codes, Sender: sender, TTL: time.Nanosecond, Digits: 6, MaxAttempts: 3})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, "+212600000005"))
	time.Sleep(5 * time.Millisecond)

	ok, err := svc.Verify(ctx, "+212600000005", sender.code(t, 6))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRequestEmptyPhone(t *testing.T) {
	svc, _, _ := newTestService(t)
	require.Error(t, svc.Request(context.Background(), "  "))
}
