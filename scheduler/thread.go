// SPDX-License-Identifier: EPL-2.0

package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FrameFunc is invoked once per audio thread frame.
type FrameFunc func(ctx context.Context)

// Thread runs a FrameFunc on a dedicated, OS-locked goroutine at a fixed rate.
type Thread struct {
	name     string
	interval time.Duration
	frame    FrameFunc
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	frames atomic.Uint64
}

// NewThread creates a stopped thread running frame hz times per second.
func NewThread(name string, hz int, frame FrameFunc, log zerolog.Logger) *Thread {
	if hz <= 0 {
		hz = 1000
	}

	return &Thread{
		name:     name,
		interval: time.Second / time.Duration(hz),
		frame:    frame,
		log:      log.With().Str("thread", name).Logger(),
	}
}

// Start launches the thread.
func (t *Thread) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done != nil {
		return fmt.Errorf("%s: %w", t.name, ErrAlreadyRunning)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.loop(OnAudioThread(ctx), t.done)

	t.log.Debug().Dur("interval", t.interval).Msg("thread started")
	return nil
}

// Stop ends the loop and waits for the current frame to finish.
// It must not be called from inside the frame function.
func (t *Thread) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if done == nil {
		return
	}

	cancel()
	<-done

	t.log.Debug().Uint64("frames", t.frames.Load()).Msg("thread stopped")
}

// Running reports whether the loop is active.
func (t *Thread) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.done != nil
}

// FrameCount is the number of frames executed so far.
func (t *Thread) FrameCount() uint64 { return t.frames.Load() }

func (t *Thread) loop(ctx context.Context, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.runFrame(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Thread) runFrame(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Err(fmt.Errorf("%w: %v", ErrPanic, r)).Msg("frame panicked")
		}
	}()

	start := time.Now()
	t.frame(ctx)
	t.frames.Add(1)

	if elapsed := time.Since(start); elapsed > t.interval*4 {
		t.log.Debug().Dur("elapsed", elapsed).Msg("slow frame")
	}
}
