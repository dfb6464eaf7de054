// Package pipeline sequences one voice interaction: transcribe the sealed
// recording, fetch a conversational reply, synthesize speech and play it
// back with word-synced captions. Stages run strictly in order and each
// failure is reported for its own stage, so a dead chat backend still
// leaves the transcript on screen and a dead speech backend still leaves
// the reply text.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"bk-voice/caption"
	"bk-voice/models"
	"bk-voice/record"
	"bk-voice/storage"
)

var ErrBusy = errors.New("pipeline: interaction already in flight")

// Stage names one step of an orchestrated interaction, used to scope
// error reporting.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageChat       Stage = "chat"
	StageSpeak      Stage = "speak"
	StagePlay       Stage = "play"
)

type Transcriber interface {
	Transcribe(ctx context.Context, art *record.Artifact) (*models.TranscribeResult, error)
}

type Chatter interface {
	Chat(ctx context.Context, msgs []models.RoleMsg) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Playback is an in-flight audio playback emitting caption frames.
type Playback interface {
	Frames() <-chan caption.Frame
	Stop()
}

// StartPlayback begins playing synthesized audio for the given text.
type StartPlayback func(logger *slog.Logger, audio []byte, text string) (Playback, error)

// Callbacks are the flow's event surface toward the presentation layer.
// Nil members are skipped.
type Callbacks struct {
	OnTranscript   func(text string)
	OnReply        func(reply models.ConversationReply)
	OnCaption      func(frame caption.Frame)
	OnNothingHeard func()
	OnStageError   func(stage Stage, err error)
	OnPlaybackDone func()
}

type Flow struct {
	logger      *slog.Logger
	transcriber Transcriber
	chatter     Chatter
	synth       Synthesizer
	play        StartPlayback
	history     storage.HistoryRepo
	cb          Callbacks
	speakBudget int

	busy     atomic.Bool
	playback atomic.Pointer[playbackBox]
}

type playbackBox struct {
	pb Playback
}

func NewFlow(logger *slog.Logger, t Transcriber, c Chatter, s Synthesizer, cb Callbacks) *Flow {
	return &Flow{
		logger:      logger,
		transcriber: t,
		chatter:     c,
		synth:       s,
		play:        defaultStartPlayback,
		cb:          cb,
		speakBudget: 1800,
	}
}

// WithHistory makes the flow log finished interactions; failures to write
// are logged and otherwise ignored.
func (f *Flow) WithHistory(h storage.HistoryRepo) *Flow {
	f.history = h
	return f
}

// WithPlayback replaces the audio playback starter.
func (f *Flow) WithPlayback(start StartPlayback) *Flow {
	f.play = start
	return f
}

// WithSpeakBudget bounds the URL-encoded length of text sent for synthesis.
func (f *Flow) WithSpeakBudget(budget int) *Flow {
	if budget > 0 {
		f.speakBudget = budget
	}
	return f
}

func defaultStartPlayback(logger *slog.Logger, audio []byte, text string) (Playback, error) {
	return caption.Play(logger, audio, text)
}

// HandleUtterance runs the full interaction for one sealed recording and
// returns once playback finishes or a stage fails. A second call while one
// interaction is in flight returns ErrBusy.
func (f *Flow) HandleUtterance(ctx context.Context, art *record.Artifact) error {
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.busy.Store(false)
	return f.run(ctx, art)
}

func (f *Flow) run(ctx context.Context, art *record.Artifact) error {
	result, err := f.transcriber.Transcribe(ctx, art)
	if err != nil {
		f.report(StageTranscribe, err)
		return err
	}
	transcript := strings.TrimSpace(result.Transcription)
	if transcript == "" {
		f.logger.Info("no speech detected")
		if f.cb.OnNothingHeard != nil {
			f.cb.OnNothingHeard()
		}
		return nil
	}
	if f.cb.OnTranscript != nil {
		f.cb.OnTranscript(transcript)
	}

	text, err := f.chatter.Chat(ctx, []models.RoleMsg{{Role: "user", Content: transcript}})
	if err != nil {
		f.report(StageChat, err)
		return err
	}
	reply := models.ConversationReply{
		Text:         text,
		Transactions: result.Transactions,
	}
	if f.cb.OnReply != nil {
		f.cb.OnReply(reply)
	}
	f.saveHistory(result.SessionID, transcript, reply.Text)

	audio, err := f.synth.Synthesize(ctx, SpeakableText(reply.Text, f.speakBudget))
	if err != nil {
		f.report(StageSpeak, err)
		return err
	}

	pb, err := f.play(f.logger, audio, reply.Text)
	if err != nil {
		f.report(StagePlay, err)
		return err
	}
	f.playback.Store(&playbackBox{pb: pb})
	defer f.playback.Store(nil)
	for frame := range pb.Frames() {
		if f.cb.OnCaption != nil {
			f.cb.OnCaption(frame)
		}
	}
	if f.cb.OnPlaybackDone != nil {
		f.cb.OnPlaybackDone()
	}
	return nil
}

// StopPlayback halts the current playback, if any. Safe at any time.
func (f *Flow) StopPlayback() {
	if box := f.playback.Load(); box != nil {
		box.pb.Stop()
	}
}

func (f *Flow) report(stage Stage, err error) {
	f.logger.Error("stage failed", "stage", string(stage), "error", err)
	if f.cb.OnStageError != nil {
		f.cb.OnStageError(stage, err)
	}
}

func (f *Flow) saveHistory(sessionID, transcript, reply string) {
	if f.history == nil {
		return
	}
	_, err := f.history.SaveInteraction(&models.Interaction{
		SessionID:  sessionID,
		Transcript: transcript,
		Reply:      reply,
	})
	if err != nil {
		f.logger.Warn("failed to save interaction", "error", err)
	}
}
