package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:              "default",
			Fallback:           "default",
			Output:             "default",
			CalibrationSeconds: 1.5,
		},
		VAD: VADConfig{
			StartRatio:    3.0,
			StopRatio:     1.6,
			StartFrames:   3,
			StopFrames:    8,
			SilenceMS:     900,
			GraceMS:       300,
			MinDurationMS: 700,
			MaxDurationMS: 90000,
			MaxWaitMS:     15000,
		},
		Intent: IntentConfig{
			HighThreshold:   3.5,
			MediumThreshold: 2.2,
			LowThreshold:    1.6,
		},
		Exchange: ExchangeConfig{
			Provider:  "openai",
			APIKeyEnv: "OPENAI_API_KEY",
			TimeoutMS: 30000,
		},
		TTS: TTSConfig{
			Enable:    true,
			Voice:     "alloy",
			Speed:     1.0,
			TimeoutMS: 30000,
		},
		Archive: ArchiveConfig{
			Enable:    true,
			BaseURL:   "http://127.0.0.1:8787",
			TimeoutMS: 10000,
		},
		Observe: ObserveConfig{
			Enable: true,
			Listen: "127.0.0.1:8482",
		},
		Session: SessionConfig{
			MaxTurns: 0,
			Language: "en",
		},
		Debug: DebugConfig{},
	}
}
