// Package record turns microphone input into a sealed WAV artifact through
// a small state machine: Idle -> Capturing -> Finalizing -> Idle, with Error
// reachable when the capture device cannot be acquired. Duplicate stop
// signals are a fact of life for push-to-talk UIs, so Stop is idempotent
// and the device handle is released exactly once.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	ErrDeviceAccess     = errors.New("record: capture device unavailable")
	ErrAlreadyCapturing = errors.New("record: recording already in progress")
)

type State int

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Artifact is one finished recording: a complete WAV file in memory.
// Sealed on Stop; not touched afterwards.
type Artifact struct {
	Data       []byte
	MIME       string
	SampleRate int
}

// Device is an exclusive handle on an open capture stream. Read blocks for
// the next chunk of 16-bit mono samples.
type Device interface {
	Read() ([]int16, error)
	Close() error
}

// OpenDeviceFunc acquires the capture device at the given sample rate.
type OpenDeviceFunc func(sampleRate int) (Device, error)

type Recorder struct {
	logger     *slog.Logger
	openDevice OpenDeviceFunc
	sampleRate int

	mu    sync.Mutex
	state State
	buf   bytes.Buffer
	dev   Device
	done  chan struct{}
}

func NewRecorder(logger *slog.Logger, openDevice OpenDeviceFunc, sampleRate int) *Recorder {
	return &Recorder{
		logger:     logger,
		openDevice: openDevice,
		sampleRate: sampleRate,
	}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start acquires the device and begins buffering chunks. Valid from Idle
// (or Error, which it recovers from); rejected while a capture is live.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.state == StateCapturing || r.state == StateFinalizing {
		r.mu.Unlock()
		return ErrAlreadyCapturing
	}
	r.mu.Unlock()
	// Acquire outside the lock; device open can block on the OS.
	dev, err := r.openDevice(r.sampleRate)
	if err != nil {
		r.mu.Lock()
		r.state = StateError
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceAccess, err)
	}
	r.mu.Lock()
	r.buf.Reset()
	r.dev = dev
	r.done = make(chan struct{})
	r.state = StateCapturing
	go r.captureLoop(dev, r.done)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) captureLoop(dev Device, done chan struct{}) {
	defer close(done)
	for {
		r.mu.Lock()
		capturing := r.state == StateCapturing
		r.mu.Unlock()
		if !capturing {
			return
		}
		chunk, err := dev.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Error("reading capture stream", "error", err)
			}
			return
		}
		r.mu.Lock()
		// a chunk read during capture still belongs to the artifact even
		// if Stop moved us to Finalizing mid-read; Stop waits for this
		// loop before sealing
		if r.state == StateCapturing || r.state == StateFinalizing {
			if err := binary.Write(&r.buf, binary.LittleEndian, chunk); err != nil {
				r.logger.Error("writing to capture buffer", "error", err)
			}
		}
		r.mu.Unlock()
	}
}

// Stop ends the capture and seals the buffered chunks into one WAV
// artifact. From Idle or Finalizing it is a no-op returning nil, so
// overlapping stop signals (pointer-up plus pointer-leave) are harmless.
func (r *Recorder) Stop() (*Artifact, error) {
	r.mu.Lock()
	switch r.state {
	case StateError:
		r.state = StateIdle
		r.mu.Unlock()
		return nil, nil
	case StateCapturing:
		// proceed
	default:
		r.mu.Unlock()
		return nil, nil
	}
	r.state = StateFinalizing
	dev := r.dev
	r.dev = nil
	done := r.done
	r.mu.Unlock()

	<-done // let the capture loop flush its last chunk
	if err := dev.Close(); err != nil {
		r.logger.Warn("failed to close capture device", "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sealed := &bytes.Buffer{}
	writeWavHeader(sealed, r.buf.Len(), r.sampleRate)
	if _, err := io.Copy(sealed, &r.buf); err != nil {
		r.buf.Reset()
		r.state = StateIdle
		return nil, fmt.Errorf("failed to seal recording: %w", err)
	}
	r.buf.Reset()
	r.state = StateIdle
	return &Artifact{
		Data:       sealed.Bytes(),
		MIME:       "audio/wav",
		SampleRate: r.sampleRate,
	}, nil
}

// writeWavHeader prepends the 44-byte RIFF header for 16-bit mono PCM.
func writeWavHeader(w io.Writer, dataSize, sampleRate int) {
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate)*1*(16/8))
	binary.LittleEndian.PutUint16(header[32:34], 1*(16/8))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
	w.Write(header)
}
