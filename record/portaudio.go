package record

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const chunkFrames = 64

type portaudioDevice struct {
	stream *portaudio.Stream
	in     []int16
}

// OpenPortaudio acquires the default capture device as 16-bit mono at the
// given sample rate. The returned Device owns the portaudio lifetime and
// must be closed to release the microphone.
func OpenPortaudio(sampleRate int) (Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}
	in := make([]int16, chunkFrames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
	if err != nil {
		if paErr := portaudio.Terminate(); paErr != nil {
			return nil, fmt.Errorf("failed to open microphone: %w; terminate error: %w", err, paErr)
		}
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start capture stream: %w", err)
	}
	return &portaudioDevice{stream: stream, in: in}, nil
}

func (d *portaudioDevice) Read() ([]int16, error) {
	if err := d.stream.Read(); err != nil {
		return nil, err
	}
	chunk := make([]int16, len(d.in))
	copy(chunk, d.in)
	return chunk, nil
}

func (d *portaudioDevice) Close() error {
	if err := d.stream.Stop(); err != nil {
		d.stream.Close()
		portaudio.Terminate()
		return err
	}
	err := d.stream.Close()
	if paErr := portaudio.Terminate(); err == nil {
		err = paErr
	}
	return err
}
