package caption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

var ErrPlayback = errors.New("caption: playback failed")

const tickEvery = 100 * time.Millisecond

// Player plays one synthesized mp3 through the speaker and emits caption
// frames timed against the decoded stream's actual position. Frames stop
// at natural end or on Stop, whichever comes first; the frames channel is
// closed either way.
type Player struct {
	logger *slog.Logger
	frames chan Frame
	quit   chan struct{}

	mu       sync.Mutex
	ctrl     *beep.Ctrl
	stream   beep.StreamSeekCloser
	released bool
	stopped  bool
}

// Play decodes the audio, starts playback and begins emitting frames for
// the given reply text.
func Play(logger *slog.Logger, audio []byte, text string) (*Player, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(audio)))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 decode: %w", ErrPlayback, err)
	}
	cs := NewSync(text)
	cs.SetDuration(format.SampleRate.D(streamer.Len()))
	// speaker.Init fails on reinitialization; playback still works, so the
	// error is only logged (matching how short-lived clips behave in
	// practice with a shared speaker).
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		logger.Debug("failed to init speaker", "error", err)
	}
	p := &Player{
		logger: logger,
		frames: make(chan Frame, 16),
		quit:   make(chan struct{}),
		stream: streamer,
	}
	done := make(chan bool)
	p.ctrl = &beep.Ctrl{Streamer: beep.Seq(streamer, beep.Callback(func() {
		close(done)
	}))}
	speaker.Play(p.ctrl)
	go p.watch(streamer, format.SampleRate, cs, done)
	return p, nil
}

// Frames yields monotonically growing caption frames. Closed when playback
// ends or is stopped.
func (p *Player) Frames() <-chan Frame {
	return p.frames
}

func (p *Player) watch(stream beep.StreamSeeker, sr beep.SampleRate, cs *Sync, done chan bool) {
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()
	defer close(p.frames)
	for {
		select {
		case <-done:
			// reveal whatever remains, then abandon the stream
			if frame, ok := cs.Tick(cs.Duration()); ok {
				p.emit(frame)
			}
			p.release(false)
			return
		case <-p.quit:
			return
		case <-ticker.C:
			speaker.Lock()
			pos := stream.Position()
			speaker.Unlock()
			if frame, ok := cs.Tick(sr.D(pos)); ok {
				p.emit(frame)
			}
		}
	}
}

func (p *Player) emit(frame Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	select {
	case p.frames <- frame:
	default:
		// a stalled consumer only misses an intermediate prefix
	}
}

// Stop halts playback and frame emission synchronously, rewinds the stream
// and releases it. Safe to call more than once.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()
	p.release(true)
}

func (p *Player) release(rewind bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	speaker.Lock()
	p.ctrl.Paused = true
	p.ctrl.Streamer = nil
	speaker.Unlock()
	if rewind {
		if err := p.stream.Seek(0); err != nil {
			p.logger.Debug("failed to rewind stream", "error", err)
		}
	}
	if err := p.stream.Close(); err != nil {
		p.logger.Debug("failed to close stream", "error", err)
	}
}
