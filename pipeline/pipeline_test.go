package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bk-voice/caption"
	"bk-voice/models"
	"bk-voice/record"
)

type fakeTranscriber struct {
	result *models.TranscribeResult
	err    error
	calls  atomic.Int32
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ *record.Artifact) (*models.TranscribeResult, error) {
	f.calls.Add(1)
	return f.result, f.err
}

type fakeChatter struct {
	reply string
	err   error
	calls atomic.Int32
	block chan struct{}
}

func (f *fakeChatter) Chat(_ context.Context, _ []models.RoleMsg) (string, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.reply, f.err
}

type fakeSynth struct {
	audio []byte
	err   error
	calls atomic.Int32
}

func (f *fakeSynth) Synthesize(_ context.Context, _ string) ([]byte, error) {
	f.calls.Add(1)
	return f.audio, f.err
}

type fakePlayback struct {
	frames chan caption.Frame
}

func (f *fakePlayback) Frames() <-chan caption.Frame { return f.frames }
func (f *fakePlayback) Stop()                        {}

type recorded struct {
	mu          sync.Mutex
	transcript  string
	reply       *models.ConversationReply
	frames      []caption.Frame
	stageErrors []Stage
	nothing     bool
	playDone    bool
}

func (r *recorded) callbacks() Callbacks {
	return Callbacks{
		OnTranscript: func(text string) {
			r.mu.Lock()
			r.transcript = text
			r.mu.Unlock()
		},
		OnReply: func(reply models.ConversationReply) {
			r.mu.Lock()
			r.reply = &reply
			r.mu.Unlock()
		},
		OnCaption: func(frame caption.Frame) {
			r.mu.Lock()
			r.frames = append(r.frames, frame)
			r.mu.Unlock()
		},
		OnNothingHeard: func() {
			r.mu.Lock()
			r.nothing = true
			r.mu.Unlock()
		},
		OnStageError: func(stage Stage, err error) {
			r.mu.Lock()
			r.stageErrors = append(r.stageErrors, stage)
			r.mu.Unlock()
		},
		OnPlaybackDone: func() {
			r.mu.Lock()
			r.playDone = true
			r.mu.Unlock()
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testArtifact() *record.Artifact {
	return &record.Artifact{Data: []byte("RIFF"), MIME: "audio/wav", SampleRate: 16000}
}

func TestEmptyTranscriptShortCircuits(t *testing.T) {
	tr := &fakeTranscriber{result: &models.TranscribeResult{Transcription: "  "}}
	ch := &fakeChatter{}
	sy := &fakeSynth{}
	rec := &recorded{}
	flow := NewFlow(testLogger(), tr, ch, sy, rec.callbacks())

	if err := flow.HandleUtterance(context.Background(), testArtifact()); err != nil {
		t.Fatalf("HandleUtterance errored: %v", err)
	}
	if !rec.nothing {
		t.Errorf("expected nothing-heard event")
	}
	if ch.calls.Load() != 0 || sy.calls.Load() != 0 {
		t.Errorf("chat/speak must not run on empty transcript: chat=%d speak=%d", ch.calls.Load(), sy.calls.Load())
	}
	if len(rec.stageErrors) != 0 {
		t.Errorf("expected no stage errors, got %v", rec.stageErrors)
	}
}

func TestChatFailureKeepsTranscript(t *testing.T) {
	tr := &fakeTranscriber{result: &models.TranscribeResult{Transcription: "What is my balance?"}}
	ch := &fakeChatter{err: errors.New("chat backend down")}
	sy := &fakeSynth{}
	rec := &recorded{}
	flow := NewFlow(testLogger(), tr, ch, sy, rec.callbacks())

	if err := flow.HandleUtterance(context.Background(), testArtifact()); err == nil {
		t.Fatalf("expected error from chat stage")
	}
	if rec.transcript != "What is my balance?" {
		t.Errorf("transcript must survive chat failure, got %q", rec.transcript)
	}
	if len(rec.stageErrors) != 1 || rec.stageErrors[0] != StageChat {
		t.Errorf("expected exactly one chat-stage error, got %v", rec.stageErrors)
	}
	if sy.calls.Load() != 0 {
		t.Errorf("speak must not run after chat failure")
	}
}

func TestSpeakFailureKeepsReply(t *testing.T) {
	tr := &fakeTranscriber{result: &models.TranscribeResult{Transcription: "hello"}}
	ch := &fakeChatter{reply: "hi there"}
	sy := &fakeSynth{err: errors.New("tts down")}
	rec := &recorded{}
	flow := NewFlow(testLogger(), tr, ch, sy, rec.callbacks())
	flow.WithPlayback(func(*slog.Logger, []byte, string) (Playback, error) {
		t.Errorf("playback must not start after speak failure")
		return nil, nil
	})

	if err := flow.HandleUtterance(context.Background(), testArtifact()); err == nil {
		t.Fatalf("expected error from speak stage")
	}
	if rec.reply == nil || rec.reply.Text != "hi there" {
		t.Errorf("reply text must survive speak failure, got %+v", rec.reply)
	}
	if len(rec.frames) != 0 {
		t.Errorf("no caption frame may be emitted after speak failure")
	}
	if len(rec.stageErrors) != 1 || rec.stageErrors[0] != StageSpeak {
		t.Errorf("expected exactly one speak-stage error, got %v", rec.stageErrors)
	}
}

func TestFullInteraction(t *testing.T) {
	tr := &fakeTranscriber{result: &models.TranscribeResult{
		Transcription: "What is my balance?",
		Transactions:  []models.TransactionRecord{},
		SessionID:     "sid-9",
	}}
	ch := &fakeChatter{reply: "Your balance is RWF 50,000"}
	sy := &fakeSynth{audio: []byte{1, 2, 3}}
	rec := &recorded{}
	flow := NewFlow(testLogger(), tr, ch, sy, rec.callbacks())

	// Simulate a 4s clip for 6 words with a deterministic playback.
	pb := &fakePlayback{frames: make(chan caption.Frame)}
	flow.WithPlayback(func(_ *slog.Logger, audio []byte, text string) (Playback, error) {
		if len(audio) != 3 {
			t.Errorf("playback got wrong audio: %d bytes", len(audio))
		}
		cs := caption.NewSync(text)
		cs.SetDuration(4 * time.Second)
		go func() {
			defer close(pb.frames)
			for ms := 0; ms <= 4000; ms += 500 {
				if frame, ok := cs.Tick(time.Duration(ms) * time.Millisecond); ok {
					pb.frames <- frame
				}
			}
		}()
		return pb, nil
	})

	if err := flow.HandleUtterance(context.Background(), testArtifact()); err != nil {
		t.Fatalf("HandleUtterance failed: %v", err)
	}
	if rec.transcript != "What is my balance?" {
		t.Errorf("unexpected transcript %q", rec.transcript)
	}
	if rec.reply == nil || rec.reply.Text != "Your balance is RWF 50,000" {
		t.Errorf("unexpected reply %+v", rec.reply)
	}
	if !rec.playDone {
		t.Errorf("expected playback-done event")
	}
	if len(rec.frames) == 0 {
		t.Fatalf("expected caption frames")
	}
	last := -1
	for _, frame := range rec.frames {
		if frame.Index <= last {
			t.Fatalf("caption index went backwards: %d after %d", frame.Index, last)
		}
		last = frame.Index
	}
	wordCount := len(strings.Fields(rec.reply.Text))
	if last != wordCount-1 {
		t.Errorf("expected full reveal (index %d), got %d", wordCount-1, last)
	}
	if rec.frames[len(rec.frames)-1].Text != rec.reply.Text {
		t.Errorf("expected final caption to equal reply text, got %q", rec.frames[len(rec.frames)-1].Text)
	}
}

func TestBusyGuard(t *testing.T) {
	tr := &fakeTranscriber{result: &models.TranscribeResult{Transcription: "hello"}}
	ch := &fakeChatter{reply: "hi", block: make(chan struct{})}
	sy := &fakeSynth{err: errors.New("stop here")}
	rec := &recorded{}
	flow := NewFlow(testLogger(), tr, ch, sy, rec.callbacks())

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- flow.HandleUtterance(context.Background(), testArtifact())
	}()
	// wait until the first interaction is parked inside the chat stage
	deadline := time.Now().Add(time.Second)
	for ch.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := flow.HandleUtterance(context.Background(), testArtifact()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(ch.block)
	<-firstDone
	// and free again afterwards
	if err := flow.HandleUtterance(context.Background(), testArtifact()); errors.Is(err, ErrBusy) {
		t.Errorf("flow still busy after interaction finished")
	}
}

func TestSpeakableText(t *testing.T) {
	cases := []struct {
		in     string
		budget int
		want   string
	}{
		{"**Your balance** is `RWF 50,000`", 1800, "Your balance is RWF 50,000"},
		{"<b>hello</b> world", 1800, "hello world"},
		{"Short one. " + strings.Repeat("This sentence pads the text well past any budget. ", 50), 60, "Short one."},
	}
	for i, tc := range cases {
		got := SpeakableText(tc.in, tc.budget)
		if got != tc.want {
			t.Errorf("case %d: got %q, want %q", i, got, tc.want)
		}
		if len(url.PathEscape(got)) > tc.budget {
			t.Errorf("case %d: escaped text exceeds budget", i)
		}
	}
}
