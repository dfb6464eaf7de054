package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"bk-voice/config"
	"bk-voice/gateway"
	"bk-voice/pipeline"
	"bk-voice/record"
	"bk-voice/session"
	"bk-voice/storage"
)

func main() {
	cfgPath := flag.String("config", "config.toml", "path to config file")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		// workable defaults when no config file is around
		cfg = &config.Config{}
		cfg.FillDefaults()
	}
	logLevel := new(slog.LevelVar)
	if *debug {
		logLevel.Set(slog.LevelDebug)
	}
	var logWriter io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, ferr := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr == nil {
			defer f.Close()
			logWriter = f
		}
	}
	logger := slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: logLevel}))

	repo, err := storage.NewProviderSQL(cfg.DBPATH, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open db: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()
	sessions := session.NewStore(logger, repo)
	timeout := time.Duration(cfg.HTTPTimeout) * time.Second
	assistant := gateway.NewAssistantGateway(logger, sessions, cfg.AssistantAPI, timeout)
	chat := gateway.NewChatGateway(logger, sessions, cfg.ChatAPI, cfg.ServiceCategory, timeout)
	recorder := record.NewRecorder(logger, record.OpenPortaudio, cfg.STT_SR)

	var synth pipeline.Synthesizer = assistant
	if cfg.TTS_PROVIDER == "google-translate" {
		synth = pipeline.NewGoogleSynthesizer(cfg.TTS_LANGUAGE, cfg.TTS_SPEED)
	}

	ui := newTUI(logger, recorder)
	ui.flow = pipeline.NewFlow(logger, assistant, chat, synth, ui.Callbacks()).
		WithHistory(repo).
		WithSpeakBudget(cfg.SpeakURLBudget)
	if err := ui.Run(); err != nil {
		logger.Error("failed to start tview app", "error", err)
	}
}
