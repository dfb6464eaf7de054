// Package caption reveals the words of a spoken reply in step with audio
// playback. The synthesis backend gives no word timestamps, so the reveal
// assumes uniform per-word duration; it is an approximation, recomputed
// from the real playback position every tick so it never drifts.
package caption

import (
	"math"
	"strings"
	"time"
)

// Frame is the cumulative caption at a point in playback: the index of the
// last revealed word and the prefix text up to it.
type Frame struct {
	Index int
	Text  string
}

// Sync maps elapsed playback time to caption frames. Indices only ever
// grow within one playback.
type Sync struct {
	words    []string
	duration time.Duration
	last     int
}

func NewSync(text string) *Sync {
	return &Sync{
		words: strings.Fields(text),
		last:  -1,
	}
}

// SetDuration records the total playback duration once it is known.
// Ticks before a positive duration arrives emit nothing.
func (s *Sync) SetDuration(d time.Duration) {
	s.duration = d
}

func (s *Sync) Duration() time.Duration {
	return s.duration
}

func (s *Sync) WordCount() int {
	return len(s.words)
}

// Tick computes the word index for the given elapsed playback time and
// returns a new frame when the index advanced past the last emitted one.
func (s *Sync) Tick(elapsed time.Duration) (Frame, bool) {
	if s.duration <= 0 || len(s.words) == 0 {
		return Frame{}, false
	}
	wordsPerSecond := float64(len(s.words)) / s.duration.Seconds()
	idx := int(math.Floor(elapsed.Seconds() * wordsPerSecond))
	if idx > len(s.words)-1 {
		idx = len(s.words) - 1
	}
	if idx < 0 || idx <= s.last {
		return Frame{}, false
	}
	s.last = idx
	return Frame{
		Index: idx,
		Text:  strings.Join(s.words[:idx+1], " "),
	}, true
}
