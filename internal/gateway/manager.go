package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/idgen"
	"github.com/mbeoliero/nexosync/pkg/jwt"
)

// ResyncFunc runs after every successful (re)connect while the read loop is live.
// advance reports the resync phase; the manager reports connected once it returns.
type ResyncFunc func(ctx context.Context, advance func(entity.ConnStatus)) error

// ReconnectOptions bounds the dial backoff
type ReconnectOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     uint
}

func (o ReconnectOptions) withDefaults() ReconnectOptions {
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 30 * time.Second
	}
	if o.Multiplier < 1 {
		o.Multiplier = 2
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 8
	}
	return o
}

// session is one credential's lifetime, across any number of transports
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	token  string
	userId string

	mu          sync.Mutex
	conn        ClientConn
	transportId string
}

func newSession(token, userId string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{ctx: ctx, cancel: cancel, token: token, userId: userId}
}

func (s *session) current() (ClientConn, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.transportId
}

func (s *session) attach(conn ClientConn) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.transportId = uuid.NewString()
	return s.transportId
}

func (s *session) detach() {
	s.mu.Lock()
	s.conn = nil
	s.transportId = ""
	s.mu.Unlock()
}

func (s *session) stop() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

// Manager owns the single live connection of the engine
type Manager struct {
	dialer Dialer
	opts   ReconnectOptions
	bus    *EventBus
	now    func() time.Time

	mu         sync.Mutex
	state      entity.Connection
	sess       *session
	rejected   string
	resync     ResyncFunc
	statusSubs map[int]func(entity.Connection)
	nextSubId  int

	msgIncr atomic.Uint64
	wg      sync.WaitGroup
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithReconnect sets the reconnect backoff bounds
func WithReconnect(opts ReconnectOptions) ManagerOption {
	return func(m *Manager) {
		m.opts = opts
	}
}

// WithClock replaces time.Now for credential expiry checks
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a disconnected Manager
func NewManager(dialer Dialer, opts ...ManagerOption) *Manager {
	m := &Manager{
		dialer:     dialer,
		bus:        NewEventBus(),
		now:        time.Now,
		state:      entity.Connection{Status: entity.ConnStatusDisconnected},
		statusSubs: make(map[int]func(entity.Connection)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.opts = m.opts.withDefaults()
	return m
}

// Bus returns the live event bus
func (m *Manager) Bus() *EventBus {
	return m.bus
}

// SetResync installs the hook run after every successful connect
func (m *Manager) SetResync(fn ResyncFunc) {
	m.mu.Lock()
	m.resync = fn
	m.mu.Unlock()
}

// Status returns the current connection state
func (m *Manager) Status() entity.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserId returns the user of the active credential
func (m *Manager) UserId() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.userId
}

// SubscribeStatus calls fn on every state change until the returned cancel is called
func (m *Manager) SubscribeStatus(fn func(entity.Connection)) func() {
	m.mu.Lock()
	m.nextSubId++
	id := m.nextSubId
	m.statusSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.statusSubs, id)
		m.mu.Unlock()
	}
}

// Connect establishes the transport for token, retrying transient failures.
// It is a no-op while a session for the same token exists; a different token replaces the session.
func (m *Manager) Connect(ctx context.Context, token string) error {
	claims, err := jwt.InspectToken(token, m.now())
	if err != nil {
		m.mu.Lock()
		idle := m.sess == nil
		m.mu.Unlock()
		if idle {
			m.setState(nil, "", func(c *entity.Connection) {
				*c = entity.Connection{Status: entity.ConnStatusDisconnected, LastError: err.Error(), Terminal: true}
			})
		}
		return err
	}

	m.mu.Lock()
	if token == m.rejected {
		m.mu.Unlock()
		return errcode.ErrAuthRejected
	}
	if m.sess != nil && m.sess.token == token {
		m.mu.Unlock()
		return nil
	}
	old := m.sess
	sess := newSession(token, claims.UserId)
	m.sess = sess
	m.mu.Unlock()

	status := entity.ConnStatusConnecting
	if old != nil {
		log.CtxInfo(ctx, "credential changed, reconnecting: user_id=%s", claims.UserId)
		old.stop()
		status = entity.ConnStatusReconnecting
	}
	m.setState(sess, "", func(c *entity.Connection) {
		*c = entity.Connection{Status: status}
	})

	conn, err := m.dial(ctx, sess)
	if err != nil {
		m.fail(sess, err)
		return err
	}

	m.wg.Add(1)
	go m.run(sess, conn)
	return nil
}

// Disconnect tears the session down, cancels any retry and clears every listener
func (m *Manager) Disconnect() {
	m.mu.Lock()
	sess := m.sess
	m.sess = nil
	m.state = entity.Connection{Status: entity.ConnStatusDisconnected}
	state := m.state
	subs := m.snapshotSubsLocked()
	m.statusSubs = make(map[int]func(entity.Connection))
	m.mu.Unlock()

	if sess != nil {
		sess.stop()
		log.Info("gateway disconnected: user_id=%s", sess.userId)
	}
	notify(subs, state)
	m.bus.Clear()
}

// Wait blocks until every background goroutine of past sessions has exited
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Send writes one request frame on the current transport
func (m *Manager) Send(ctx context.Context, reqIdentifier int32, payload interface{}) error {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return errcode.ErrNotConnected
	}
	conn, _ := sess.current()
	if conn == nil {
		return errcode.ErrNotConnected
	}

	data, err := Encode(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	frame, err := Encode(WSRequest{
		ReqIdentifier: reqIdentifier,
		MsgIncr:       strconv.FormatUint(m.msgIncr.Add(1), 10),
		OperationId:   idgen.NextOperationId(),
		SendId:        sess.userId,
		Data:          data,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if err := conn.WriteMessage(frame); err != nil {
		return fmt.Errorf("send request %d: %w", reqIdentifier, err)
	}
	log.CtxDebug(ctx, "sent request: req_identifier=%d, user_id=%s", reqIdentifier, sess.userId)
	return nil
}

// Join subscribes to a conversation's live events
func (m *Manager) Join(ctx context.Context, conversationId string) error {
	return m.Send(ctx, WSJoinRoom, &RoomReq{ConversationId: conversationId})
}

// Leave unsubscribes from a conversation's live events
func (m *Manager) Leave(ctx context.Context, conversationId string) error {
	return m.Send(ctx, WSLeaveRoom, &RoomReq{ConversationId: conversationId})
}

// SendTyping emits a typing start or stop for the local user
func (m *Manager) SendTyping(ctx context.Context, conversationId string, typing bool) error {
	return m.Send(ctx, WSTyping, &TypingReq{ConversationId: conversationId, Typing: typing})
}

// run owns a session's transports until logout, credential change or a terminal failure
func (m *Manager) run(sess *session, conn ClientConn) {
	defer m.wg.Done()

	for {
		m.attach(sess, conn)
		err := m.readLoop(sess, conn)
		sess.detach()
		conn.Close()

		if sess.ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrKicked) {
			log.CtxWarn(sess.ctx, "kicked offline: user_id=%s", sess.userId)
			m.fail(sess, errcode.ErrAuthRejected.Wrap(err))
			return
		}

		log.CtxWarn(sess.ctx, "connection lost, reconnecting: user_id=%s, err=%v", sess.userId, err)
		m.setState(sess, "", func(c *entity.Connection) {
			*c = entity.Connection{Status: entity.ConnStatusReconnecting, LastError: errString(err)}
		})

		next, err := m.dial(sess.ctx, sess)
		if err != nil {
			m.fail(sess, err)
			return
		}
		conn = next
	}
}

// attach publishes a new transport and starts the resync hook, if any
func (m *Manager) attach(sess *session, conn ClientConn) {
	transportId := sess.attach(conn)
	log.CtxInfo(sess.ctx, "gateway connected: user_id=%s, transport_id=%s", sess.userId, transportId)

	m.mu.Lock()
	resync := m.resync
	m.mu.Unlock()

	if resync == nil {
		m.setState(sess, transportId, func(c *entity.Connection) {
			*c = entity.Connection{Status: entity.ConnStatusConnected, TransportId: transportId}
		})
		return
	}

	m.setState(sess, transportId, func(c *entity.Connection) {
		c.TransportId = transportId
		c.Terminal = false
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		advance := func(status entity.ConnStatus) {
			m.setState(sess, transportId, func(c *entity.Connection) {
				c.Status = status
			})
		}

		err := m.runResync(sess, resync, advance)
		if err != nil {
			log.CtxWarn(sess.ctx, "resync incomplete: user_id=%s, err=%v", sess.userId, err)
		}
		m.setState(sess, transportId, func(c *entity.Connection) {
			c.Status = entity.ConnStatusConnected
			c.LastError = errString(err)
		})
	}()
}

func (m *Manager) runResync(sess *session, resync ResyncFunc, advance func(entity.ConnStatus)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(sess.ctx, "resync panic: user_id=%s, error=%v", sess.userId, r)
			err = errcode.ErrResyncIncomplete.Wrap(fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	return resync(sess.ctx, advance)
}

// readLoop dispatches frames until the transport fails or the server kicks the session
func (m *Manager) readLoop(sess *session, conn ClientConn) error {
	for {
		message, err := conn.ReadMessage()
		if err != nil {
			log.CtxDebug(sess.ctx, "read message error: user_id=%s, error=%v", sess.userId, err)
			return err
		}
		if err := m.dispatch(sess.ctx, message); err != nil {
			return err
		}
	}
}

// dispatch decodes one frame and publishes it; only a kick is returned as an error
func (m *Manager) dispatch(ctx context.Context, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(ctx, "dispatch panic: error=%v", r)
			err = nil
		}
	}()

	var resp WSResponse
	if err := Decode(message, &resp); err != nil {
		log.CtxWarn(ctx, "drop malformed frame: %v", err)
		return nil
	}

	switch resp.ReqIdentifier {
	case WSPushMsg:
		m.dispatchMessages(ctx, resp.Data)
	case WSPushTyping:
		ev, err := decodePayload(resp.Data, (*TypingData).ToTypingEvent)
		if err != nil {
			return dropped(ctx, resp.ReqIdentifier, err)
		}
		m.bus.Publish(ctx, &Event{Kind: EventTyping, ConversationId: ev.ConversationId, Typing: ev})
	case WSPushRead:
		receipt, err := decodePayload(resp.Data, (*ReadData).ToReceipt)
		if err != nil {
			return dropped(ctx, resp.ReqIdentifier, err)
		}
		m.bus.Publish(ctx, &Event{Kind: EventReadReceipt, ConversationId: receipt.ConversationId, Receipt: receipt})
	case WSPushDeleted:
		deletion, err := decodePayload(resp.Data, (*DeletedData).ToDeletion)
		if err != nil {
			return dropped(ctx, resp.ReqIdentifier, err)
		}
		m.bus.Publish(ctx, &Event{Kind: EventMessageDeleted, ConversationId: deletion.ConversationId, Deletion: deletion})
	case WSPushPresence:
		presence, err := decodePayload(resp.Data, (*PresenceData).ToPresence)
		if err != nil {
			return dropped(ctx, resp.ReqIdentifier, err)
		}
		m.bus.Publish(ctx, &Event{Kind: EventPresence, Presence: presence})
	case WSKickOnlineMsg:
		var kick KickData
		_ = Decode(resp.Data, &kick)
		log.CtxWarn(ctx, "kick frame received: reason=%s", kick.Reason)
		return ErrKicked
	case WSJoinRoom, WSLeaveRoom, WSTyping, WSDataError:
		if resp.ErrCode != 0 {
			log.CtxWarn(ctx, "request rejected: req_identifier=%d, msg_incr=%s, err_code=%d, err_msg=%s",
				resp.ReqIdentifier, resp.MsgIncr, resp.ErrCode, resp.ErrMsg)
		}
	default:
		log.CtxDebug(ctx, "ignore frame: req_identifier=%d", resp.ReqIdentifier)
	}
	return nil
}

// dispatchMessages publishes pushed messages, conversation by conversation in id order
func (m *Manager) dispatchMessages(ctx context.Context, data []byte) {
	var push PushMsgData
	if err := Decode(data, &push); err != nil {
		dropped(ctx, WSPushMsg, err)
		return
	}

	conversationIds := make([]string, 0, len(push.Msgs))
	for id := range push.Msgs {
		conversationIds = append(conversationIds, id)
	}
	sort.Strings(conversationIds)

	for _, conversationId := range conversationIds {
		for _, d := range push.Msgs[conversationId] {
			if d == nil {
				continue
			}
			msg, err := d.ToMessage(conversationId)
			if err != nil {
				dropped(ctx, WSPushMsg, err)
				continue
			}
			m.bus.Publish(ctx, &Event{Kind: EventNewMessage, ConversationId: msg.ConversationId, Message: msg})
		}
	}
}

// dial retries transient failures with exponential backoff; auth rejection is permanent
func (m *Manager) dial(ctx context.Context, sess *session) (ClientConn, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess.ctx, cancel)
	defer stop()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.InitialInterval
	b.MaxInterval = m.opts.MaxInterval
	b.Multiplier = m.opts.Multiplier

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (ClientConn, error) {
		attempt++
		conn, err := m.dialer.Dial(ctx, sess.token, sess.userId)
		if err != nil {
			if errors.Is(err, errcode.ErrAuthRejected) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return conn, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(m.opts.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.CtxWarn(ctx, "dial gateway failed: user_id=%s, attempt=%d, retry_in=%s, err=%v", sess.userId, attempt, next, err)
			m.setState(sess, "", func(c *entity.Connection) {
				c.Status = entity.ConnStatusReconnecting
				c.LastError = err.Error()
			})
		}),
	)

	switch {
	case sess.ctx.Err() != nil:
		if conn != nil {
			conn.Close()
		}
		return nil, context.Canceled
	case err == nil:
		return conn, nil
	case errors.Is(err, errcode.ErrAuthRejected):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, errcode.ErrReconnectFailed.Wrap(err)
	}
}

// fail ends a session after an unrecoverable error
func (m *Manager) fail(sess *session, err error) {
	if sess.ctx.Err() != nil {
		return
	}
	terminal := errors.Is(err, errcode.ErrAuthRejected)

	m.mu.Lock()
	if m.sess != sess {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	if terminal {
		m.rejected = sess.token
	}
	m.state = entity.Connection{Status: entity.ConnStatusDisconnected, LastError: err.Error(), Terminal: terminal}
	state := m.state
	subs := m.snapshotSubsLocked()
	m.mu.Unlock()

	sess.cancel()
	log.Warn("gateway session ended: user_id=%s, terminal=%v, err=%v", sess.userId, terminal, err)
	notify(subs, state)
}

// setState mutates the state when sess is still current (and transportId still attached, if given)
func (m *Manager) setState(sess *session, transportId string, fn func(*entity.Connection)) {
	m.mu.Lock()
	if sess != nil && m.sess != sess {
		m.mu.Unlock()
		return
	}
	if transportId != "" {
		if _, current := sess.current(); current != transportId {
			m.mu.Unlock()
			return
		}
	}
	prev := m.state
	fn(&m.state)
	state := m.state
	subs := m.snapshotSubsLocked()
	m.mu.Unlock()

	if state != prev {
		notify(subs, state)
	}
}

func (m *Manager) snapshotSubsLocked() []func(entity.Connection) {
	ids := make([]int, 0, len(m.statusSubs))
	for id := range m.statusSubs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(entity.Connection), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, m.statusSubs[id])
	}
	return subs
}

func notify(subs []func(entity.Connection), state entity.Connection) {
	for _, fn := range subs {
		fn(state)
	}
}

func decodePayload[T any, R any](data []byte, convert func(*T) (R, error)) (R, error) {
	var payload T
	if err := Decode(data, &payload); err != nil {
		var zero R
		return zero, fmt.Errorf("%w: %v", ErrInvalidProtocol, err)
	}
	return convert(&payload)
}

func dropped(ctx context.Context, reqIdentifier int32, err error) error {
	log.CtxWarn(ctx, "drop malformed event: req_identifier=%d, err=%v", reqIdentifier, err)
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
