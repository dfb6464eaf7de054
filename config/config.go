package config

import (
	"github.com/BurntSushi/toml"
)

type Config struct {
	// assistant backend (transcription + speech)
	AssistantAPI string `toml:"AssistantAPI"`
	// conversational backend
	ChatAPI         string `toml:"ChatAPI"`
	ServiceCategory string `toml:"ServiceCategory"`
	//
	LogFile     string `toml:"LogFile"`
	DBPATH      string `toml:"DBPATH"`
	HTTPTimeout int    `toml:"HTTPTimeout"` // seconds
	// STT
	STT_SR int `toml:"STT_SR"`
	// TTS
	TTS_PROVIDER   string  `toml:"TTS_PROVIDER"` // remote, google-translate
	TTS_SPEED      float32 `toml:"TTS_SPEED"`
	TTS_LANGUAGE   string  `toml:"TTS_LANGUAGE"`
	SpeakURLBudget int     `toml:"SpeakURLBudget"`
}

func LoadConfig(fn string) (*Config, error) {
	if fn == "" {
		fn = "config.toml"
	}
	config := &Config{}
	_, err := toml.DecodeFile(fn, &config)
	if err != nil {
		return nil, err
	}
	config.FillDefaults()
	return config, nil
}

// FillDefaults replaces zero values with workable local defaults.
func (c *Config) FillDefaults() {
	if c.AssistantAPI == "" {
		c.AssistantAPI = "http://localhost:8000"
	}
	if c.ChatAPI == "" {
		c.ChatAPI = "http://localhost:8001/chat"
	}
	if c.ServiceCategory == "" {
		c.ServiceCategory = "general"
	}
	if c.DBPATH == "" {
		c.DBPATH = "bk-voice.db"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30
	}
	if c.STT_SR <= 0 {
		c.STT_SR = 16000
	}
	if c.TTS_SPEED <= 0 {
		c.TTS_SPEED = 1.0
	}
	if c.TTS_LANGUAGE == "" {
		c.TTS_LANGUAGE = "en"
	}
	if c.SpeakURLBudget <= 0 {
		c.SpeakURLBudget = 1800
	}
}
