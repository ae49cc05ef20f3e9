package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.FrameDuration = 5 * time.Millisecond
	return cfg
}

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *MockSource, *MockSink) {
	t.Helper()
	source := NewMockSource(cfg, nil)
	sink := NewMockSink(cfg, nil)
	p := NewPipeline(cfg, source, sink, nil)
	t.Cleanup(func() { p.Close() })
	return p, source, sink
}

func TestPipeline_CaptureDeliversOrderedFrames(t *testing.T) {
	cfg := testConfig()
	p, _, _ := newTestPipeline(t, cfg)

	var mu sync.Mutex
	var frames []Frame
	p.OnFrame(func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})

	if err := p.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected at least 3 frames, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := p.StopCapture(); err != nil {
		t.Fatalf("StopCapture failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	for i, f := range frames[:3] {
		if f.Seq != uint64(i) {
			t.Errorf("Frame %d: expected seq %d, got %d", i, i, f.Seq)
		}
		if len(f.Data) != cfg.FrameBytes() {
			t.Errorf("Frame %d: expected %d bytes, got %d", i, cfg.FrameBytes(), len(f.Data))
		}
	}
}

func TestPipeline_StartCaptureWhileActive(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig())

	if err := p.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	if err := p.StartCapture(context.Background()); err != ErrDeviceBusy {
		t.Errorf("Expected ErrDeviceBusy, got %v", err)
	}

	if !p.Capturing() {
		t.Error("Expected pipeline to still be capturing")
	}
}

func TestPipeline_StopCaptureIdempotent(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig())

	// Stop without start is a no-op
	if err := p.StopCapture(); err != nil {
		t.Fatalf("StopCapture failed: %v", err)
	}

	if err := p.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	if err := p.StopCapture(); err != nil {
		t.Fatalf("StopCapture failed: %v", err)
	}
	if err := p.StopCapture(); err != nil {
		t.Fatalf("Second StopCapture failed: %v", err)
	}
}

func TestPipeline_PlaybackOrder(t *testing.T) {
	p, _, sink := newTestPipeline(t, testConfig())

	f1 := Frame{Data: []byte{1, 0, 1, 0}, Seq: 0}
	f2 := Frame{Data: []byte{2, 0, 2, 0}, Seq: 1}
	f3 := Frame{Data: []byte{3, 0, 3, 0}, Seq: 2}

	for _, f := range []Frame{f1, f2, f3} {
		if err := p.EnqueuePlayback(f); err != nil {
			t.Fatalf("EnqueuePlayback failed: %v", err)
		}
	}

	written := waitForWritten(t, sink, 3)
	for i, want := range [][]byte{f1.Data, f2.Data, f3.Data} {
		got := written[i]
		if len(got) != len(want) {
			t.Fatalf("Frame %d: expected %d bytes, got %d", i, len(want), len(got))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("Frame %d byte %d: expected %d, got %d", i, j, want[j], got[j])
			}
		}
	}
}

func TestPipeline_PlaybackPassthrough(t *testing.T) {
	p, _, sink := newTestPipeline(t, testConfig())

	// A full 100ms frame must reach the device unmodified.
	data := make([]byte, 3200)
	for i := range data {
		data[i] = byte(i)
	}

	if err := p.EnqueuePlayback(Frame{Data: data}); err != nil {
		t.Fatalf("EnqueuePlayback failed: %v", err)
	}

	written := waitForWritten(t, sink, 1)
	if len(written[0]) != len(data) {
		t.Fatalf("Expected %d bytes at sink, got %d", len(data), len(written[0]))
	}
	for i := range data {
		if written[0][i] != data[i] {
			t.Fatalf("Byte %d modified in transit: expected %d, got %d", i, data[i], written[0][i])
		}
	}
}

func TestPipeline_ResampledPlayback(t *testing.T) {
	cfg := testConfig() // 16kHz device
	p, _, sink := newTestPipeline(t, cfg)

	// Inbound frames at 32kHz should land at half the sample count.
	p.SetPlaybackRate(32000)

	data := make([]byte, 1280) // 640 samples at 32kHz
	if err := p.EnqueuePlayback(Frame{Data: data}); err != nil {
		t.Fatalf("EnqueuePlayback failed: %v", err)
	}

	written := waitForWritten(t, sink, 1)
	if len(written[0]) != 640 {
		t.Errorf("Expected 640 bytes after resample, got %d", len(written[0]))
	}
}

func TestPipeline_StopPlaybackAndRestart(t *testing.T) {
	p, _, sink := newTestPipeline(t, testConfig())

	if err := p.EnqueuePlayback(Frame{Data: []byte{1, 0}}); err != nil {
		t.Fatalf("EnqueuePlayback failed: %v", err)
	}
	waitForWritten(t, sink, 1)

	if err := p.StopPlayback(); err != nil {
		t.Fatalf("StopPlayback failed: %v", err)
	}

	// Stop clears the device buffer
	if got := len(sink.Written()); got != 0 {
		t.Errorf("Expected cleared sink after StopPlayback, got %d frames", got)
	}

	// Stopping again is a no-op
	if err := p.StopPlayback(); err != nil {
		t.Fatalf("Second StopPlayback failed: %v", err)
	}

	// Enqueue after stop restarts the render loop
	if err := p.EnqueuePlayback(Frame{Data: []byte{2, 0}}); err != nil {
		t.Fatalf("EnqueuePlayback after stop failed: %v", err)
	}
	written := waitForWritten(t, sink, 1)
	if written[0][0] != 2 {
		t.Errorf("Expected frame from second enqueue, got %v", written[0])
	}
}

func TestPipeline_Stats(t *testing.T) {
	p, _, sink := newTestPipeline(t, testConfig())

	if err := p.EnqueuePlayback(Frame{Data: []byte{1, 0}}); err != nil {
		t.Fatalf("EnqueuePlayback failed: %v", err)
	}
	waitForWritten(t, sink, 1)

	deadline := time.Now().Add(500 * time.Millisecond)
	for p.Stats().FramesPlayed < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 1 frame played, got %d", p.Stats().FramesPlayed)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFrame_Duration(t *testing.T) {
	f := Frame{Data: make([]byte, 640)} // 320 samples, 20ms at 16kHz mono
	d := f.Duration(16000, 1)

	if d != 20*time.Millisecond {
		t.Errorf("Expected 20ms, got %v", d)
	}
}

func TestPipeline_SourceHaltClearsCapture(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig())

	errCh := make(chan error, 1)
	p.OnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	// Cancelling the context halts the source without StopCapture. The
	// pipeline must notice, clear its busy state, and surface the halt.
	cancel()

	deadline := time.Now().Add(500 * time.Millisecond)
	for p.Capturing() {
		if time.Now().After(deadline) {
			t.Fatal("Pipeline still reports capturing after source halted")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSourceHalted) {
			t.Errorf("Expected ErrSourceHalted, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for halt error")
	}

	if err := p.StartCapture(context.Background()); err != nil {
		t.Fatalf("Restart after halt failed: %v", err)
	}
}

// waitForWritten polls the mock sink until n frames have landed.
func waitForWritten(t *testing.T, sink *MockSink, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		written := sink.Written()
		if len(written) >= n {
			return written
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d frames at sink, got %d", n, len(written))
		}
		time.Sleep(time.Millisecond)
	}
}
