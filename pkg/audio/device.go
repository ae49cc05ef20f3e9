package audio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// CaptureDevice captures microphone audio through miniaudio. The device
// data callback runs on a real-time thread: it only appends to the
// pending buffer, carves fixed-size frames, and hands them off with a
// non-blocking send.
type CaptureDevice struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	running  bool
	closed   bool
	streamCh chan []byte
	pending  []byte

	framesRead atomic.Int64
	overruns   atomic.Int64
}

// NewCaptureDevice creates a miniaudio capture source.
func NewCaptureDevice(cfg Config, logger *slog.Logger) (*CaptureDevice, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return nil, &DeviceError{Op: "init", Backend: "miniaudio", Cause: err}
	}

	return &CaptureDevice{
		cfg:    cfg,
		logger: logger,
		mctx:   mctx,
	}, nil
}

// Start configures the capture device and begins delivering frames.
func (c *CaptureDevice) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.running {
		return nil
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = uint32(c.cfg.Channels)
	deviceCfg.SampleRate = uint32(c.cfg.SampleRate)
	deviceCfg.PeriodSizeInMilliseconds = uint32(c.cfg.FrameDuration.Milliseconds())

	c.streamCh = make(chan []byte, 16)
	c.pending = c.pending[:0]
	frameBytes := c.cfg.FrameBytes()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.mu.Lock()
			if !c.running {
				c.mu.Unlock()
				return
			}
			c.pending = append(c.pending, input...)
			for len(c.pending) >= frameBytes {
				frame := make([]byte, frameBytes)
				copy(frame, c.pending[:frameBytes])
				c.pending = c.pending[frameBytes:]
				select {
				case c.streamCh <- frame:
					c.framesRead.Add(1)
				default:
					c.overruns.Add(1)
				}
			}
			c.mu.Unlock()
		},
	}

	device, err := malgo.InitDevice(c.mctx.Context, deviceCfg, callbacks)
	if err != nil {
		return &DeviceError{Op: "capture", Backend: "miniaudio", Cause: err}
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return &DeviceError{Op: "capture", Backend: "miniaudio", Cause: err}
	}

	c.device = device
	c.running = true

	c.logger.Info("capture device started",
		"backend", "miniaudio",
		"sample_rate", c.cfg.SampleRate,
		"channels", c.cfg.Channels,
		"frame_ms", c.cfg.FrameDuration.Milliseconds(),
	)
	return nil
}

// Stop releases the device tap. Safe to call when not capturing.
func (c *CaptureDevice) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	device := c.device
	c.device = nil
	streamCh := c.streamCh
	c.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	// No more data callbacks after device.Stop returns.
	close(streamCh)

	c.logger.Info("capture device stopped", "backend", "miniaudio")
	return nil
}

// Stream returns the channel of captured frames.
func (c *CaptureDevice) Stream() <-chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamCh
}

// Config returns the audio configuration.
func (c *CaptureDevice) Config() Config {
	return c.cfg
}

// Name returns "miniaudio".
func (c *CaptureDevice) Name() string {
	return "miniaudio"
}

// Close releases the miniaudio context.
func (c *CaptureDevice) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.Stop()
	return c.mctx.Uninit()
}

// Stats returns source statistics.
func (c *CaptureDevice) Stats() SourceStats {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	return SourceStats{
		FramesRead: c.framesRead.Load(),
		Overruns:   c.overruns.Load(),
		Running:    running,
		Backend:    "miniaudio",
	}
}

var _ SourceWithStats = (*CaptureDevice)(nil)

// PlaybackDevice renders audio through oto. Frames are appended to an
// internal buffer that oto's player pulls from via io.Reader, so Write
// never blocks on the hardware.
type PlaybackDevice struct {
	cfg    Config
	logger *slog.Logger
	otoCtx *oto.Context

	mu      sync.Mutex
	player  *oto.Player
	buf     []byte
	playing bool
	running bool
	closed  bool

	framesWritten atomic.Int64
	bytesWritten  atomic.Int64
}

// NewPlaybackDevice creates an oto playback sink. oto allows one context
// per process; construct a single PlaybackDevice and reuse it.
func NewPlaybackDevice(cfg Config, logger *slog.Logger) (*PlaybackDevice, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		// ~100ms device buffer: low latency without starving the player.
		BufferSize: 5 * cfg.FrameDuration,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, &DeviceError{Op: "init", Backend: "oto", Cause: err}
	}
	<-ready

	p := &PlaybackDevice{
		cfg:    cfg,
		logger: logger,
		otoCtx: otoCtx,
	}
	return p, nil
}

// Start begins accepting frames.
func (p *PlaybackDevice) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.running = true
	return nil
}

// Write appends a frame for rendering. The player is started lazily on
// the first write.
func (p *PlaybackDevice) Write(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.running {
		return ErrClosed
	}

	p.buf = append(p.buf, pcm...)
	p.framesWritten.Add(1)
	p.bytesWritten.Add(int64(len(pcm)))

	if !p.playing {
		p.playing = true
		p.player = p.otoCtx.NewPlayer(p)
		p.player.Play()
	}

	return nil
}

// Read implements io.Reader for the oto player. It supplies silence when
// the buffer runs dry so the device keeps a steady cadence.
func (p *PlaybackDevice) Read(out []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buf) == 0 {
		for i := range out {
			out[i] = 0
		}
		return len(out), nil
	}

	n := copy(out, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

// Clear discards all buffered audio immediately.
func (p *PlaybackDevice) Clear() error {
	p.mu.Lock()
	p.buf = p.buf[:0]
	player := p.player
	playing := p.playing
	p.player = nil
	p.playing = false
	p.mu.Unlock()

	if player != nil && playing {
		player.Pause()
		_ = player.Close()
	}
	return nil
}

// Stop halts rendering and discards buffered audio.
func (p *PlaybackDevice) Stop() error {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return p.Clear()
}

// Config returns the audio configuration.
func (p *PlaybackDevice) Config() Config {
	return p.cfg
}

// Name returns "oto".
func (p *PlaybackDevice) Name() string {
	return "oto"
}

// Close releases the sink.
func (p *PlaybackDevice) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.Stop()
}

// Stats returns sink statistics.
func (p *PlaybackDevice) Stats() SinkStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return SinkStats{
		FramesWritten: p.framesWritten.Load(),
		BytesWritten:  p.bytesWritten.Load(),
		Running:       running,
		Backend:       "oto",
	}
}

var _ SinkWithStats = (*PlaybackDevice)(nil)
