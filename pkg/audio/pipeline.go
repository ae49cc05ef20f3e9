package audio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// playbackQueueSize bounds the ordered playback queue: ~5s of 20ms frames
// before enqueues are refused.
const playbackQueueSize = 256

// Pipeline owns the audio device pair: it produces a continuous sequence
// of fixed-size capture frames and renders received frames strictly in
// enqueue order. Device errors surface through the error callback; the
// real-time paths never propagate errors into caller code.
type Pipeline struct {
	cfg    Config
	source Source
	sink   Sink
	logger *slog.Logger

	mu            sync.Mutex
	capturing     bool
	captureStream <-chan []byte
	rendering     bool
	playCh        chan Frame
	playStop      chan struct{}
	captureSeq    uint64
	playbackRate  int

	onFrame func(Frame)
	onError func(error)

	framesCaptured atomic.Int64
	framesPlayed   atomic.Int64
}

// NewPipeline composes a pipeline from an explicit source and sink.
func NewPipeline(cfg Config, source Source, sink Sink, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:          cfg,
		source:       source,
		sink:         sink,
		logger:       logger.With("component", "audio"),
		playbackRate: cfg.SampleRate,
	}
}

// New builds a pipeline with backend-selected source and sink.
func New(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	source, err := NewSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	sink, err := NewSink(cfg, logger)
	if err != nil {
		source.Close()
		return nil, err
	}
	return NewPipeline(cfg, source, sink, logger), nil
}

// OnFrame sets the capture sink. The callback runs on the capture pump
// goroutine once per frame and must do only bounded, constant-time work.
func (p *Pipeline) OnFrame(fn func(Frame)) {
	p.mu.Lock()
	p.onFrame = fn
	p.mu.Unlock()
}

// OnError sets the device error callback.
func (p *Pipeline) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Config returns the pipeline's audio configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Capturing reports whether capture is active.
func (p *Pipeline) Capturing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturing
}

// StartCapture configures the input device and begins delivering frames
// to the registered OnFrame callback. It fails with ErrDeviceBusy while
// capture is already active.
func (p *Pipeline) StartCapture(ctx context.Context) error {
	p.mu.Lock()
	if p.capturing {
		p.mu.Unlock()
		return ErrDeviceBusy
	}
	if err := p.source.Start(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	p.capturing = true
	p.captureSeq = 0
	stream := p.source.Stream()
	p.captureStream = stream
	p.mu.Unlock()

	go p.pumpCapture(stream)
	return nil
}

// pumpCapture forwards device frames to the registered callback, stamping
// each with its capture ordinal. Exits when the source stream closes.
func (p *Pipeline) pumpCapture(stream <-chan []byte) {
	for pcm := range stream {
		p.mu.Lock()
		fn := p.onFrame
		seq := p.captureSeq
		p.captureSeq++
		p.mu.Unlock()

		p.framesCaptured.Add(1)
		if fn != nil {
			fn(Frame{Data: pcm, Seq: seq})
		}
	}

	// The stream closed. If StopCapture did it, capturing is already
	// clear (or a newer capture session owns the flag). Otherwise the
	// source halted on its own and the pipeline must not keep reporting
	// itself busy.
	p.mu.Lock()
	halted := p.capturing && p.captureStream == stream
	if halted {
		p.capturing = false
	}
	p.mu.Unlock()

	if halted {
		p.emitError(&DeviceError{Op: "capture", Backend: p.source.Name(), Cause: ErrSourceHalted})
	}
}

// StopCapture releases the device tap. Idempotent; safe to call when not
// capturing.
func (p *Pipeline) StopCapture() error {
	p.mu.Lock()
	if !p.capturing {
		p.mu.Unlock()
		return nil
	}
	p.capturing = false
	p.mu.Unlock()

	return p.source.Stop()
}

// EnqueuePlayback appends a frame to the ordered playback queue. The
// render loop and output device are started automatically on the first
// enqueue. Fails with ErrPlaybackQueueFull when the device has stalled.
func (p *Pipeline) EnqueuePlayback(frame Frame) error {
	p.mu.Lock()
	if !p.rendering {
		if err := p.sink.Start(context.Background()); err != nil {
			p.mu.Unlock()
			return err
		}
		p.rendering = true
		p.playCh = make(chan Frame, playbackQueueSize)
		p.playStop = make(chan struct{})
		go p.renderLoop(p.playCh, p.playStop)
	}
	ch := p.playCh
	p.mu.Unlock()

	select {
	case ch <- frame:
		return nil
	default:
		return ErrPlaybackQueueFull
	}
}

// renderLoop writes queued frames to the sink in enqueue order.
func (p *Pipeline) renderLoop(playCh chan Frame, stop chan struct{}) {
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case frame := <-playCh:
			// Re-check stop: select picks arms randomly, and a frame
			// queued before StopPlayback must not reach the sink after.
			select {
			case <-stop:
				return
			default:
			}
			data := frame.Data

			p.mu.Lock()
			rate := p.playbackRate
			p.mu.Unlock()
			if rate != p.cfg.SampleRate {
				data = ResampleBytes(data, rate, p.cfg.SampleRate)
			}

			if err := p.sink.Write(ctx, data); err != nil {
				p.emitError(&DeviceError{Op: "playback", Backend: p.sink.Name(), Cause: err})
				continue
			}
			p.framesPlayed.Add(1)
		}
	}
}

// StopPlayback clears the queue and halts rendering.
func (p *Pipeline) StopPlayback() error {
	p.mu.Lock()
	if !p.rendering {
		p.mu.Unlock()
		return nil
	}
	p.rendering = false
	close(p.playStop)
	p.playCh = nil
	p.playStop = nil
	p.mu.Unlock()

	if err := p.sink.Clear(); err != nil {
		return err
	}
	return p.sink.Stop()
}

// SetPlaybackRate declares the sample rate of inbound frames. Frames are
// resampled to the device rate when the two differ (e.g. a 24kHz
// synthesis voice on a 16kHz session).
func (p *Pipeline) SetPlaybackRate(rate int) {
	p.mu.Lock()
	if rate > 0 {
		p.playbackRate = rate
	}
	p.mu.Unlock()
}

// Close stops both directions and releases the devices.
func (p *Pipeline) Close() error {
	_ = p.StopCapture()
	_ = p.StopPlayback()
	err := p.source.Close()
	if cerr := p.sink.Close(); err == nil {
		err = cerr
	}
	return err
}

// Stats returns pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		FramesCaptured: p.framesCaptured.Load(),
		FramesPlayed:   p.framesPlayed.Load(),
	}
}

// PipelineStats contains pipeline counters for telemetry.
type PipelineStats struct {
	FramesCaptured int64 `json:"frames_captured"`
	FramesPlayed   int64 `json:"frames_played"`
}

func (p *Pipeline) emitError(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()

	p.logger.Error("device error", "error", err)
	if fn != nil {
		fn(err)
	}
}
