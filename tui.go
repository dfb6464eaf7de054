package main

import (
	"context"
	"fmt"
	"log/slog"

	"bk-voice/caption"
	"bk-voice/models"
	"bk-voice/pipeline"
	"bk-voice/record"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpLine = "F2: record/stop; Esc: stop playback; Ctrl+C: quit"

type tui struct {
	logger   *slog.Logger
	app      *tview.Application
	convo    *tview.TextView
	captions *tview.TextView
	status   *tview.TextView
	recorder *record.Recorder
	flow     *pipeline.Flow
}

func newTUI(logger *slog.Logger, recorder *record.Recorder) *tui {
	t := &tui{
		logger:   logger,
		recorder: recorder,
		app:      tview.NewApplication(),
	}
	t.convo = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.convo.SetBorder(true).SetTitle("conversation")
	t.captions = tview.NewTextView().SetTextAlign(tview.AlignCenter)
	t.captions.SetBorder(true).SetTitle("now speaking")
	t.status = tview.NewTextView().SetDynamicColors(true)
	t.status.SetText(helpLine)
	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.convo, 0, 1, false).
		AddItem(t.captions, 3, 0, false).
		AddItem(t.status, 1, 0, false)
	t.app.SetRoot(flex, true).SetInputCapture(t.onKey)
	return t
}

func (t *tui) Run() error {
	return t.app.Run()
}

func (t *tui) onKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyF2:
		t.toggleRecording()
		return nil
	case tcell.KeyEscape:
		if t.flow != nil {
			t.flow.StopPlayback()
		}
		return nil
	}
	return event
}

func (t *tui) toggleRecording() {
	if t.recorder.State() == record.StateCapturing {
		artifact, err := t.recorder.Stop()
		if err != nil {
			t.status.SetText(fmt.Sprintf("[red]recording failed: %v[-]", err))
			return
		}
		if artifact == nil {
			return
		}
		t.status.SetText("thinking...")
		go func() {
			if err := t.flow.HandleUtterance(context.Background(), artifact); err != nil {
				t.logger.Debug("interaction ended with error", "error", err)
			}
		}()
		return
	}
	if err := t.recorder.Start(); err != nil {
		t.status.SetText(fmt.Sprintf("[red]mic unavailable: %v[-]", err))
		return
	}
	t.status.SetText("[yellow]recording... F2 to stop[-]")
}

// Callbacks adapts pipeline events onto the UI thread.
func (t *tui) Callbacks() pipeline.Callbacks {
	return pipeline.Callbacks{
		OnTranscript: func(text string) {
			t.appendLine(fmt.Sprintf("[yellow]you:[-] %s", text))
		},
		OnReply: func(reply models.ConversationReply) {
			t.appendLine(fmt.Sprintf("[green]assistant:[-] %s", reply.Text))
			for _, tx := range reply.Transactions {
				t.appendLine(formatTransaction(tx))
			}
		},
		OnCaption: func(frame caption.Frame) {
			t.app.QueueUpdateDraw(func() {
				t.captions.SetText(frame.Text)
			})
		},
		OnNothingHeard: func() {
			t.setStatus("nothing detected, try again")
		},
		OnStageError: func(stage pipeline.Stage, err error) {
			t.setStatus(fmt.Sprintf("[red]%s failed: %v[-]", stage, err))
		},
		OnPlaybackDone: func() {
			t.setStatus(helpLine)
		},
	}
}

func (t *tui) appendLine(line string) {
	t.app.QueueUpdateDraw(func() {
		fmt.Fprintf(t.convo, "%s\n", line)
		t.convo.ScrollToEnd()
	})
}

func (t *tui) setStatus(text string) {
	t.app.QueueUpdateDraw(func() {
		t.status.SetText(text)
	})
}

func formatTransaction(tx models.TransactionRecord) string {
	sign := "+"
	if tx.IsDebit() {
		sign = "-"
	}
	line := fmt.Sprintf("    %s  %s%s  %s  bal %s",
		tx.Date, sign, tx.FormattedAmount(), tx.Description, tx.FormattedBalance())
	if tx.Reference != "" {
		line += fmt.Sprintf("  ref %s", tx.Reference)
	}
	return line
}
