// Package connection owns one persistent WebSocket connection to the
// speech backend: dial, duplex framing, keepalive, and the
// reconnect-with-backoff state machine.
package connection

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicelink/go-voicelink/pkg/wire"
)

const (
	defaultDialTimeout = 10 * time.Second

	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// readWait is the read deadline, refreshed on every inbound message
	// and pong. pingPeriod must be well below it.
	readWait   = 120 * time.Second
	pingPeriod = 30 * time.Second

	// sendQueueSize bounds the outbound queue. At 20ms audio frames this
	// is over a second of buffered capture before frames are refused.
	sendQueueSize = 64
)

// outbound is one queued payload plus its result callback.
type outbound struct {
	kind    wire.Kind
	payload []byte
	done    func(error)
}

// session is the per-connection plumbing, replaced wholesale on every
// (re)connect so stale goroutines can be told apart from live ones.
type session struct {
	conn   *websocket.Conn
	sendCh chan outbound
	closed chan struct{}
}

// Manager owns one persistent connection to a configured endpoint.
// All state mutation happens under mu (single-writer discipline); other
// goroutines read snapshots or call the public methods.
type Manager struct {
	endpoint    string
	header      http.Header
	dialTimeout time.Duration
	policy      ReconnectPolicy
	logger      *slog.Logger

	mu          sync.Mutex
	state       State
	status      Status
	sess        *session
	gen         uint64 // bumped whenever the current session is invalidated
	attempt     uint
	manualClose bool
	timer       *time.Timer

	onMessage func(kind wire.Kind, payload []byte)
	onStatus  func(Status)

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64
	reconnects       atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithHeader sets extra HTTP headers for the WebSocket handshake
// (e.g. authorization).
func WithHeader(h http.Header) Option {
	return func(m *Manager) {
		m.header = h
	}
}

// WithDialTimeout bounds the WebSocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.dialTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager for the given ws:// or wss:// endpoint. The
// reconnect policy is fixed for the Manager's lifetime; a policy change
// requires constructing a new Manager.
func New(endpoint string, policy ReconnectPolicy, opts ...Option) (*Manager, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &DialError{Endpoint: endpoint, Cause: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &DialError{Endpoint: endpoint, Cause: errBadScheme(u.Scheme)}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		endpoint:    endpoint,
		dialTimeout: defaultDialTimeout,
		policy:      policy,
		logger:      slog.Default(),
		state:       StateDisconnected,
		status:      Status{State: StateDisconnected},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "connection")
	return m, nil
}

// OnMessage sets the callback invoked for every inbound payload, tagged
// with its framing kind. The callback runs on the receive goroutine and
// must not block.
func (m *Manager) OnMessage(fn func(kind wire.Kind, payload []byte)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// OnStatus sets the callback invoked on every state transition.
func (m *Manager) OnStatus(fn func(Status)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
}

// Status returns the current state snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Stats returns connection counters.
func (m *Manager) Stats() Stats {
	return Stats{
		MessagesSent:     m.messagesSent.Load(),
		MessagesReceived: m.messagesReceived.Load(),
		BytesSent:        m.bytesSent.Load(),
		BytesReceived:    m.bytesReceived.Load(),
		Reconnects:       m.reconnects.Load(),
	}
}

// Connect opens the transport and arms the receive loop. It is a no-op
// while already connecting or connected, clears the manual-close flag,
// and returns without waiting for the dial to finish.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.manualClose = false
	notify, gen := m.beginDialLocked()
	m.mu.Unlock()

	notify()
	go m.dial(gen)
}

// timerConnect is the reconnect timer's target. Unlike Connect it never
// clears the manual-close flag, and it refuses to run once the schedule
// that armed it is stale: a timer goroutine that had already fired when
// Disconnect stopped it must not resurrect the connection.
func (m *Manager) timerConnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.manualClose ||
		m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	notify, dialGen := m.beginDialLocked()
	m.mu.Unlock()

	notify()
	go m.dial(dialGen)
}

// beginDialLocked arms a fresh dial generation. Caller holds mu.
func (m *Manager) beginDialLocked() (func(), uint64) {
	m.stopTimerLocked()
	m.gen++
	return m.transitionLocked(Status{State: StateConnecting, Attempt: m.attempt}), m.gen
}

// Disconnect closes the transport, cancels any pending reconnect timer,
// and suppresses automatic reconnection until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manualClose = true
	m.stopTimerLocked()
	m.gen++
	sess := m.sess
	m.sess = nil
	m.attempt = 0
	notify := m.transitionLocked(Status{State: StateClosedManually})
	m.mu.Unlock()

	if sess != nil {
		teardown(sess)
	}
	notify()
	m.logger.Info("disconnected")
}

// Send queues a payload for asynchronous write. It fails immediately with
// ErrNotConnected when the connection is not established; otherwise the
// write result is reported through done (which may be nil) and the caller
// is never blocked.
func (m *Manager) Send(kind wire.Kind, payload []byte, done func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.sess == nil {
		return ErrNotConnected
	}

	// Enqueue while still holding mu. Teardown invalidates m.sess under
	// this same lock before the writer exits, so a payload accepted here
	// is always either written or reported through the exit drain; its
	// done callback can never be dropped.
	select {
	case m.sess.sendCh <- outbound{kind: kind, payload: payload, done: done}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// dial performs the blocking transport dial off the caller's goroutine.
func (m *Manager) dial(gen uint64) {
	dialer := websocket.Dialer{HandshakeTimeout: m.dialTimeout}
	conn, resp, err := dialer.Dial(m.endpoint, m.header)

	m.mu.Lock()
	if gen != m.gen || m.manualClose {
		m.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		derr := &DialError{Endpoint: m.endpoint, Cause: err}
		if resp != nil {
			derr.StatusCode = resp.StatusCode
		}
		notify := m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.logger.Warn("dial failed", "endpoint", m.endpoint, "error", derr)
		notify()
		return
	}

	sess := &session{
		conn:   conn,
		sendCh: make(chan outbound, sendQueueSize),
		closed: make(chan struct{}),
	}
	m.sess = sess
	notify := m.transitionLocked(Status{State: StateConnected, Attempt: m.attempt})
	m.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	go m.writeLoop(sess, gen)
	go m.readLoop(sess, gen)
	go m.keepAlive(sess, gen)

	m.logger.Info("connected", "endpoint", m.endpoint)
	notify()
}

// readLoop delivers inbound payloads until the connection fails. It
// re-arms itself after every message; only an error exits the loop.
func (m *Manager) readLoop(sess *session, gen uint64) {
	first := true
	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(readWait))
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			m.transportFailure(gen, err)
			return
		}

		if first {
			// The backend acknowledged us at the application level, so
			// the backoff counter starts over. A raw socket accept is
			// not enough: a server that accepts but never answers must
			// not reset the counter.
			first = false
			m.confirmHandshake(gen)
		}

		m.messagesReceived.Add(1)
		m.bytesReceived.Add(int64(len(data)))

		var kind wire.Kind
		switch msgType {
		case websocket.BinaryMessage:
			kind = wire.KindBinary
		case websocket.TextMessage:
			kind = wire.KindText
		default:
			continue
		}

		m.mu.Lock()
		fn := m.onMessage
		m.mu.Unlock()
		if fn != nil {
			fn(kind, data)
		}
	}
}

// writeLoop is the single writer for the connection's data frames.
// Queued order is write order.
func (m *Manager) writeLoop(sess *session, gen uint64) {
	for {
		select {
		case <-sess.closed:
			drain(sess.sendCh)
			return
		case ob := <-sess.sendCh:
			msgType := websocket.TextMessage
			if ob.kind == wire.KindBinary {
				msgType = websocket.BinaryMessage
			}
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := sess.conn.WriteMessage(msgType, ob.payload)
			if ob.done != nil {
				ob.done(err)
			}
			if err != nil {
				m.transportFailure(gen, err)
				drain(sess.sendCh)
				return
			}
			m.messagesSent.Add(1)
			m.bytesSent.Add(int64(len(ob.payload)))
		}
	}
}

// keepAlive pings the server so half-dead connections fail fast instead
// of stalling the receive loop until the read deadline.
func (m *Manager) keepAlive(sess *session, gen uint64) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sess.closed:
			return
		case <-ticker.C:
			err := sess.conn.WriteControl(
				websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				m.transportFailure(gen, err)
				return
			}
		}
	}
}

// confirmHandshake resets the backoff counter once the current connection
// has received its first server message.
func (m *Manager) confirmHandshake(gen uint64) {
	m.mu.Lock()
	if gen == m.gen {
		m.attempt = 0
	}
	m.mu.Unlock()
}

// transportFailure tears down the current session and, unless manually
// closed, hands over to the reconnect schedule. Stale sessions (gen
// mismatch) are ignored so a failure callback cannot race a concurrent
// Disconnect.
func (m *Manager) transportFailure(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	sess := m.sess
	m.sess = nil

	var notify func()
	if m.manualClose {
		notify = m.transitionLocked(Status{State: StateClosedManually})
	} else {
		notify = m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	m.logger.Warn("transport failure", "error", err)
	if sess != nil {
		teardown(sess)
	}
	notify()
}

// scheduleReconnectLocked applies the reconnect policy after a failure.
// Caller holds mu.
func (m *Manager) scheduleReconnectLocked() func() {
	if !m.policy.AutoReconnect {
		return m.transitionLocked(Status{State: StateDisconnected})
	}
	if m.policy.MaxAttempts != 0 && m.attempt >= m.policy.MaxAttempts {
		return m.transitionLocked(Status{
			State:     StateDisconnected,
			Attempt:   m.attempt,
			Exhausted: true,
		})
	}

	m.attempt++
	m.reconnects.Add(1)
	delay := m.policy.Delay(m.attempt)
	m.stopTimerLocked()
	gen := m.gen
	m.timer = time.AfterFunc(delay, func() { m.timerConnect(gen) })

	return m.transitionLocked(Status{
		State:     StateReconnecting,
		Attempt:   m.attempt,
		NextDelay: delay,
	})
}

// transitionLocked records the new status and returns a closure that
// emits it to the status callback. Callers invoke the closure after
// releasing mu so a callback can re-enter the Manager.
func (m *Manager) transitionLocked(st Status) func() {
	if m.status == st {
		return func() {}
	}
	m.state = st.State
	m.status = st
	fn := m.onStatus
	logger := m.logger
	return func() {
		logger.Debug("state changed",
			"state", st.State.String(),
			"attempt", st.Attempt,
			"next_delay", st.NextDelay,
			"exhausted", st.Exhausted,
		)
		if fn != nil {
			fn(st)
		}
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// teardown closes a session's transport and wakes its goroutines.
func teardown(sess *session) {
	select {
	case <-sess.closed:
	default:
		close(sess.closed)
	}
	deadline := time.Now().Add(time.Second)
	_ = sess.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	sess.conn.Close()
}

// drain fails any payloads still queued when the connection went away.
func drain(ch chan outbound) {
	for {
		select {
		case ob := <-ch:
			if ob.done != nil {
				ob.done(ErrConnectionClosed)
			}
		default:
			return
		}
	}
}

type errBadScheme string

func (e errBadScheme) Error() string {
	return "scheme must be ws or wss, got " + string(e)
}
