// Package session composes the connection and the audio pipeline into one
// conversation session: captured audio flows out as binary frames, inbound
// binary flows to playback, and inbound control messages become typed
// events for UI collaborators.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/voicelink/go-voicelink/pkg/audio"
	"github.com/voicelink/go-voicelink/pkg/connection"
	"github.com/voicelink/go-voicelink/pkg/wire"
)

// State is the session lifecycle position. At most one Active session per
// Coordinator.
type State int

const (
	// StateIdle means no session is running.
	StateIdle State = iota
	// StateActive means a session is running. The session survives
	// transport loss: automatic reconnection resumes streaming without a
	// new Start call.
	StateActive
)

// String returns a human-readable session state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Transport is the slice of the connection manager the coordinator uses.
// Narrow on purpose so tests can inject fakes.
type Transport interface {
	Connect()
	Disconnect()
	Send(kind wire.Kind, payload []byte, done func(error)) error
	OnMessage(fn func(kind wire.Kind, payload []byte))
	OnStatus(fn func(connection.Status))
	Status() connection.Status
}

// Pipeline is the slice of the audio pipeline the coordinator uses.
type Pipeline interface {
	StartCapture(ctx context.Context) error
	StopCapture() error
	EnqueuePlayback(frame audio.Frame) error
	StopPlayback() error
	OnFrame(fn func(audio.Frame))
	OnError(fn func(error))
	Config() audio.Config
}

// Coordinator owns one conversation session over an injected transport
// and audio pipeline. Construct once per process (or per test); there are
// no package-level instances.
type Coordinator struct {
	transport Transport
	pipeline  Pipeline
	bus       *EventBus
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	sessionID  string
	configSent bool // one config message per established connection
	ctx        context.Context

	playSeq atomic.Uint64
}

// NewCoordinator wires a coordinator to its transport and pipeline. The
// coordinator registers itself as the sole consumer of both components'
// callbacks.
func NewCoordinator(transport Transport, pipeline Pipeline, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		transport: transport,
		pipeline:  pipeline,
		bus:       NewEventBus(),
		logger:    logger.With("component", "session"),
		ctx:       context.Background(),
	}

	transport.OnStatus(c.handleStatus)
	transport.OnMessage(c.handleMessage)
	pipeline.OnFrame(c.handleFrame)
	pipeline.OnError(c.handleDeviceError)

	return c
}

// Start begins a session: connects the transport and starts capture.
// A no-op (logged) while a session is already active.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateActive {
		c.mu.Unlock()
		c.logger.Warn("start ignored, session already active")
		return
	}
	c.state = StateActive
	c.sessionID = uuid.NewString()
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	id := c.sessionID
	c.mu.Unlock()

	c.logger.Info("session started", "session_id", id)
	c.transport.Connect()
	if err := c.pipeline.StartCapture(ctx); err != nil && err != audio.ErrDeviceBusy {
		c.logger.Error("capture start failed", "error", err)
		c.publishError(err)
	}
}

// Stop ends the session: halts capture and playback and disconnects.
// A no-op while idle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	id := c.sessionID
	c.mu.Unlock()

	if err := c.pipeline.StopCapture(); err != nil {
		c.logger.Warn("capture stop failed", "error", err)
	}
	if err := c.pipeline.StopPlayback(); err != nil {
		c.logger.Warn("playback stop failed", "error", err)
	}
	c.transport.Disconnect()
	c.logger.Info("session stopped", "session_id", id)
}

// SendTextMessage wraps content in a client-originated text control
// message and queues it for sending. Fails immediately when not connected.
func (c *Coordinator) SendTextMessage(content string) error {
	data, err := wire.NewText(content).Encode()
	if err != nil {
		return err
	}
	return c.transport.Send(wire.KindText, data, func(err error) {
		if err != nil {
			c.logger.Warn("text message write failed", "error", err)
		}
	})
}

// State returns the current session state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the ID of the current (or most recent) session.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Subscribe registers an event consumer. See EventBus.Subscribe.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	return c.bus.Subscribe()
}

// Snapshot is the read-only state exposed to UI collaborators.
type Snapshot struct {
	SessionID    string            `json:"session_id,omitempty"`
	SessionState string            `json:"session_state"`
	Connection   connection.Status `json:"connection"`
}

// Snapshot returns the current session and connection state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	state := c.state
	id := c.sessionID
	c.mu.Unlock()

	return Snapshot{
		SessionID:    id,
		SessionState: state.String(),
		Connection:   c.transport.Status(),
	}
}

// Close stops the session and the event bus.
func (c *Coordinator) Close() {
	c.Stop()
	c.bus.Close()
}

// handleStatus reacts to connection state transitions. Runs on the
// connection's event goroutine.
func (c *Coordinator) handleStatus(st connection.Status) {
	c.bus.Publish(Event{
		Kind:  EventConnectionState,
		State: st.State.String(),
	})

	switch st.State {
	case connection.StateConnected:
		c.onConnected()
	default:
		c.onDisconnected(st)
	}
}

// onConnected sends the config handshake exactly once per established
// connection and, if a session is active, resumes capture that a previous
// transport loss halted.
func (c *Coordinator) onConnected() {
	c.mu.Lock()
	send := !c.configSent
	c.configSent = true
	active := c.state == StateActive
	ctx := c.ctx
	c.mu.Unlock()

	if send {
		cfg := c.pipeline.Config()
		data, err := wire.NewConfig(cfg.SampleRate, cfg.Channels, "pcm16").Encode()
		if err != nil {
			c.logger.Error("config encode failed", "error", err)
			return
		}
		err = c.transport.Send(wire.KindText, data, func(err error) {
			if err != nil {
				c.logger.Warn("config write failed", "error", err)
			}
		})
		if err != nil {
			c.logger.Warn("config send failed", "error", err)
		}
	}

	if active {
		if err := c.pipeline.StartCapture(ctx); err != nil && err != audio.ErrDeviceBusy {
			c.logger.Error("capture resume failed", "error", err)
			c.publishError(err)
		}
	}
}

// onDisconnected re-arms the config guard and halts capture. The session
// stays Active so a successful automatic reconnection resumes streaming
// without a new Start call.
func (c *Coordinator) onDisconnected(st connection.Status) {
	c.mu.Lock()
	c.configSent = false
	active := c.state == StateActive
	c.mu.Unlock()

	if active && st.State != connection.StateConnecting {
		if err := c.pipeline.StopCapture(); err != nil {
			c.logger.Warn("capture stop failed", "error", err)
		}
	}
	if st.Exhausted {
		c.logger.Error("reconnect attempts exhausted")
		c.publishError(connection.ErrReconnectExhausted)
	}
}

// handleMessage routes one inbound payload. Runs on the connection's
// receive goroutine; must stay constant-time.
func (c *Coordinator) handleMessage(kind wire.Kind, payload []byte) {
	if kind == wire.KindBinary {
		frame := audio.Frame{Data: payload, Seq: c.playSeq.Add(1) - 1}
		if err := c.pipeline.EnqueuePlayback(frame); err != nil {
			c.logger.Warn("playback enqueue failed", "error", err)
		}
		return
	}

	msg, err := wire.Decode(payload)
	if err != nil {
		c.logger.Warn("dropping malformed control message", "error", err)
		return
	}
	if !msg.Known() {
		c.logger.Debug("ignoring unknown control message", "type", string(msg.Type))
		return
	}

	switch msg.Type {
	case wire.TypeTranscription:
		c.bus.Publish(Event{Kind: EventTranscription, Text: msg.Text})
	case wire.TypeResponse:
		c.bus.Publish(Event{Kind: EventResponse, Text: msg.Text})
	case wire.TypeError:
		c.logger.Error("backend error", "message", msg.Message)
		c.bus.Publish(Event{Kind: EventError, Error: msg.Message})
	default:
		// config/text are client-originated; a server echoing them is
		// harmless noise.
		c.logger.Debug("ignoring unexpected control message", "type", string(msg.Type))
	}
}

// handleFrame ships one captured frame upstream. Send failures are logged
// and dropped; reconnection is the connection layer's job, not the
// frame's.
func (c *Coordinator) handleFrame(frame audio.Frame) {
	err := c.transport.Send(wire.KindBinary, frame.Data, nil)
	if err != nil && !connection.IsNotConnected(err) {
		c.logger.Warn("frame send failed", "seq", frame.Seq, "error", err)
	}
}

// handleDeviceError forwards audio device failures to UI collaborators.
func (c *Coordinator) handleDeviceError(err error) {
	c.logger.Error("audio device error", "error", err)
	c.publishError(err)
}

func (c *Coordinator) publishError(err error) {
	c.bus.Publish(Event{Kind: EventError, Error: err.Error()})
}
