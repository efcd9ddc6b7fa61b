package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/jwt"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.done:
		return nil, ErrConnClosed
	default:
	}
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, ErrConnClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() []WSRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WSRequest, 0, len(c.writes))
	for _, w := range c.writes {
		var req WSRequest
		if Decode(w, &req) == nil {
			out = append(out, req)
		}
	}
	return out
}

func (c *fakeConn) push(t *testing.T, reqIdentifier int32, payload interface{}) {
	t.Helper()
	data, err := Encode(payload)
	require.NoError(t, err)
	frame, err := Encode(WSResponse{ReqIdentifier: reqIdentifier, Data: data})
	require.NoError(t, err)
	c.in <- frame
}

type fakeDialer struct {
	mu     sync.Mutex
	calls  int
	tokens []string
	dial   func(n int) (ClientConn, error)
}

func (d *fakeDialer) Dial(ctx context.Context, token, userId string) (ClientConn, error) {
	d.mu.Lock()
	n := d.calls
	d.calls++
	d.tokens = append(d.tokens, token)
	d.mu.Unlock()
	return d.dial(n)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestManager(d Dialer, attempts uint) *Manager {
	return NewManager(d, WithReconnect(ReconnectOptions{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		MaxAttempts:     attempts,
	}))
}

func testToken(t *testing.T, userId string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userId, 5, "secret", time.Hour)
	require.NoError(t, err)
	return token
}

func connStatus(m *Manager) func() bool {
	return func() bool { return m.Status().Status == entity.ConnStatusConnected }
}

func TestConnectIsNoOpForSameToken(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{dial: func(int) (ClientConn, error) { return conn, nil }}
	m := newTestManager(d, 3)
	token := testToken(t, "alice")

	require.NoError(t, m.Connect(context.Background(), token))
	assert.Eventually(t, connStatus(m), waitFor, tick)
	require.NoError(t, m.Connect(context.Background(), token))

	assert.Equal(t, 1, d.count())
	assert.Equal(t, "alice", m.UserId())
	assert.NotEmpty(t, m.Status().TransportId)

	m.Disconnect()
	m.Wait()
	assert.True(t, conn.isClosed())
}

func TestAuthRejectionIsTerminal(t *testing.T) {
	d := &fakeDialer{dial: func(int) (ClientConn, error) {
		return nil, errcode.ErrAuthRejected.Wrap(errors.New("handshake status 401"))
	}}
	m := newTestManager(d, 5)
	token := testToken(t, "alice")

	err := m.Connect(context.Background(), token)
	assert.True(t, errors.Is(err, errcode.ErrAuthRejected))
	assert.Equal(t, 1, d.count())

	st := m.Status()
	assert.Equal(t, entity.ConnStatusDisconnected, st.Status)
	assert.True(t, st.Terminal)
	assert.NotEmpty(t, st.LastError)

	// the rejected credential is not dialed again
	err = m.Connect(context.Background(), token)
	assert.True(t, errors.Is(err, errcode.ErrAuthRejected))
	assert.Equal(t, 1, d.count())
}

func TestExpiredTokenIsRejectedBeforeDialing(t *testing.T) {
	d := &fakeDialer{dial: func(int) (ClientConn, error) { return newFakeConn(), nil }}
	m := newTestManager(d, 3)
	token, err := jwt.GenerateToken("alice", 5, "secret", -time.Minute)
	require.NoError(t, err)

	err = m.Connect(context.Background(), token)
	assert.True(t, errors.Is(err, errcode.ErrTokenExpired))
	assert.Equal(t, 0, d.count())
	assert.True(t, m.Status().Terminal)
}

func TestRetryExhaustion(t *testing.T) {
	d := &fakeDialer{dial: func(int) (ClientConn, error) { return nil, errors.New("connection refused") }}
	m := newTestManager(d, 3)

	err := m.Connect(context.Background(), testToken(t, "alice"))
	assert.True(t, errors.Is(err, errcode.ErrReconnectFailed))
	assert.Equal(t, 3, d.count())

	st := m.Status()
	assert.Equal(t, entity.ConnStatusDisconnected, st.Status)
	assert.False(t, st.Terminal)
}

func TestReconnectRunsResync(t *testing.T) {
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	d := &fakeDialer{dial: func(n int) (ClientConn, error) {
		if n == 1 {
			return nil, errors.New("network down")
		}
		if n == 0 {
			return conns[0], nil
		}
		return conns[1], nil
	}}
	m := newTestManager(d, 5)

	var mu sync.Mutex
	var seen []entity.ConnStatus
	m.SubscribeStatus(func(c entity.Connection) {
		mu.Lock()
		seen = append(seen, c.Status)
		mu.Unlock()
	})

	var resyncs int
	m.SetResync(func(ctx context.Context, advance func(entity.ConnStatus)) error {
		advance(entity.ConnStatusResyncingRooms)
		advance(entity.ConnStatusResyncingHistory)
		mu.Lock()
		resyncs++
		mu.Unlock()
		return nil
	})

	require.NoError(t, m.Connect(context.Background(), testToken(t, "alice")))
	assert.Eventually(t, connStatus(m), waitFor, tick)
	first := m.Status().TransportId

	conns[0].Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return resyncs == 2 && m.Status().Status == entity.ConnStatusConnected
	}, waitFor, tick)
	assert.Equal(t, 3, d.count())
	assert.NotEqual(t, first, m.Status().TransportId)

	mu.Lock()
	assert.Contains(t, seen, entity.ConnStatusReconnecting)
	assert.Contains(t, seen, entity.ConnStatusResyncingRooms)
	assert.Contains(t, seen, entity.ConnStatusResyncingHistory)
	mu.Unlock()

	m.Disconnect()
	m.Wait()
}

func TestResyncErrorKeepsConnectionWithReason(t *testing.T) {
	d := &fakeDialer{dial: func(int) (ClientConn, error) { return newFakeConn(), nil }}
	m := newTestManager(d, 3)
	m.SetResync(func(ctx context.Context, advance func(entity.ConnStatus)) error {
		return errcode.ErrResyncIncomplete
	})

	require.NoError(t, m.Connect(context.Background(), testToken(t, "alice")))
	assert.Eventually(t, connStatus(m), waitFor, tick)
	assert.Contains(t, m.Status().LastError, "resync incomplete")

	m.Disconnect()
	m.Wait()
}

func TestMalformedEventsAreDropped(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{dial: func(int) (ClientConn, error) { return conn, nil }}
	m := newTestManager(d, 3)

	var mu sync.Mutex
	var got []*entity.Message
	m.Bus().Subscribe(EventNewMessage, func(ctx context.Context, ev *Event) {
		panic("handler bug")
	})
	m.Bus().Subscribe(EventNewMessage, func(ctx context.Context, ev *Event) {
		mu.Lock()
		got = append(got, ev.Message)
		mu.Unlock()
	})

	require.NoError(t, m.Connect(context.Background(), testToken(t, "alice")))
	assert.Eventually(t, connStatus(m), waitFor, tick)

	conn.in <- []byte("{not json")
	conn.push(t, WSPushMsg, PushMsgData{Msgs: map[string][]*MessageData{
		"si_alice:bob": {{ServerMsgId: 1, Seq: 1}}, // no sender
	}})
	conn.push(t, WSPushTyping, TypingData{UserId: "bob"}) // no conversation
	conn.push(t, WSPushMsg, PushMsgData{Msgs: map[string][]*MessageData{
		"si_alice:bob": {{ServerMsgId: 2, Seq: 2, SenderId: "bob", MsgType: 1, Content: entity.MessageContent{Text: "yo"}, SendAt: 1000}},
	}})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, "2", got[0].Id)
	assert.Equal(t, "si_alice:bob", got[0].ConversationId)
	assert.Equal(t, "yo", got[0].Content)
	mu.Unlock()

	assert.Equal(t, entity.ConnStatusConnected, m.Status().Status)
	assert.Equal(t, 1, d.count())

	m.Disconnect()
	m.Wait()
}

func TestKickIsTerminal(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{dial: func(int) (ClientConn, error) { return conn, nil }}
	m := newTestManager(d, 3)

	require.NoError(t, m.Connect(context.Background(), testToken(t, "alice")))
	assert.Eventually(t, connStatus(m), waitFor, tick)

	conn.push(t, WSKickOnlineMsg, KickData{Reason: "login elsewhere"})

	assert.Eventually(t, func() bool { return m.Status().Terminal }, waitFor, tick)
	m.Wait()
	assert.Equal(t, entity.ConnStatusDisconnected, m.Status().Status)
	assert.Equal(t, 1, d.count())
}

func TestLogoutCancelsRetry(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{dial: func(n int) (ClientConn, error) {
		if n == 0 {
			return conn, nil
		}
		return nil, errors.New("network down")
	}}
	m := newTestManager(d, 1000)
	m.Bus().Subscribe(EventTyping, func(ctx context.Context, ev *Event) {})

	require.NoError(t, m.Connect(context.Background(), testToken(t, "alice")))
	assert.Eventually(t, connStatus(m), waitFor, tick)

	conn.Close()
	assert.Eventually(t, func() bool { return d.count() >= 3 }, waitFor, tick)

	m.Disconnect()
	m.Wait()
	calls := d.count()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, calls, d.count())
	st := m.Status()
	assert.Equal(t, entity.ConnStatusDisconnected, st.Status)
	assert.False(t, st.Terminal)
	assert.Equal(t, 0, m.Bus().Len(EventTyping))
}

func TestNewTokenReconnects(t *testing.T) {
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	d := &fakeDialer{dial: func(n int) (ClientConn, error) { return conns[n], nil }}
	m := newTestManager(d, 3)

	first := testToken(t, "alice")
	second := testToken(t, "alice2")
	require.NoError(t, m.Connect(context.Background(), first))
	assert.Eventually(t, connStatus(m), waitFor, tick)
	require.NoError(t, m.Connect(context.Background(), second))
	assert.Eventually(t, connStatus(m), waitFor, tick)

	assert.Equal(t, 2, d.count())
	assert.Equal(t, []string{first, second}, d.tokens)
	assert.True(t, conns[0].isClosed())
	assert.Equal(t, "alice2", m.UserId())

	m.Disconnect()
	m.Wait()
}

func TestSendFrames(t *testing.T) {
	m := newTestManager(&fakeDialer{dial: func(int) (ClientConn, error) { return nil, errors.New("unused") }}, 1)
	assert.True(t, errors.Is(m.Join(context.Background(), "sg_g1"), errcode.ErrNotConnected))

	conn := newFakeConn()
	m = newTestManager(&fakeDialer{dial: func(int) (ClientConn, error) { return conn, nil }}, 3)
	require.NoError(t, m.Connect(context.Background(), testToken(t, "alice")))
	assert.Eventually(t, connStatus(m), waitFor, tick)

	require.NoError(t, m.Join(context.Background(), "sg_g1"))
	require.NoError(t, m.SendTyping(context.Background(), "sg_g1", true))

	reqs := conn.written()
	require.Len(t, reqs, 2)
	assert.Equal(t, int32(WSJoinRoom), reqs[0].ReqIdentifier)
	assert.Equal(t, "alice", reqs[0].SendId)
	var room RoomReq
	require.NoError(t, Decode(reqs[0].Data, &room))
	assert.Equal(t, "sg_g1", room.ConversationId)

	var typing TypingReq
	require.NoError(t, Decode(reqs[1].Data, &typing))
	assert.True(t, typing.Typing)
	assert.NotEqual(t, reqs[0].MsgIncr, reqs[1].MsgIncr)

	m.Disconnect()
	m.Wait()
}
