package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Signal: SignalConfig{
			HTTPAddr:              "localhost:8080",
			CLIPath:               "signal-cli",
			AttachmentsDir:        "~/.local/share/signal-cli/attachments",
			ReplyMode:             "direct",
			StartupTimeoutSeconds: 30,
		},
		Agent: AgentConfig{
			URL:            "http://localhost:3000/chat",
			TimeoutSeconds: 60,
		},
		Transcription: TranscriptionConfig{
			APIBase: "https://api.openai.com/v1",
			Model:   "whisper-1",
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8081,
		},
	}
}
