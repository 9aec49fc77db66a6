package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace:         "~/.ltl/workspace",
			LogLevel:          "info",
			MaxToolIterations: 20,
			HistorySize:       50,
		},
		Backend: BackendConfig{
			Kind:        "ollama",
			Temperature: 0.7,
			Ollama: OllamaConfig{
				BaseURL:        "http://localhost:11434",
				TextModel:      "gemma3",
				VisionModel:    "moondream",
				KeepAlive:      "30m",
				TimeoutSeconds: 300,
			},
			OpenAI: OpenAIConfig{
				BaseURL:           "https://api.openai.com/v1",
				TextModel:         "gpt-4o-mini",
				VisionModel:       "gpt-4o-mini",
				TimeoutSeconds:    120,
				RequestsPerMinute: 60,
			},
		},
		Resources: ResourcesConfig{
			KeepLoaded: map[string]bool{
				"text_generation": true,
				"vision":          false,
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMs: 500,
			MaxDelayMs:  10000,
			Jitter:      0.1,
		},
		Tools: ToolsConfig{
			TimeoutSeconds:      30,
			RestrictToWorkspace: false,
			Shell: ShellToolConfig{
				Enabled:        true,
				Timeout:        30,
				MaxOutputBytes: 65536,
			},
			Web: WebToolConfig{
				Enabled:          true,
				SearchEndpoint:   "https://api.duckduckgo.com/",
				LocationEndpoint: "https://ipinfo.io/json",
				UserAgent:        "Mozilla/5.0 (compatible; ltl/1.0)",
			},
		},
		Security: SecurityConfig{
			DefaultPolicy: "allow",
			Blacklist:     defaultBlacklist(),
			AuditLog:      true,
		},
		Intent: IntentConfig{
			VisionPhrases: defaultVisionPhrases(),
			VisionWords:   defaultVisionWords(),
		},
		Memory: MemoryConfig{
			Enabled:  true,
			DBPath:   "~/.ltl/memory.db",
			LogTurns: true,
		},
		Vision: VisionConfig{
			Prompt: "Describe what you see in this image.",
		},
	}
}

func defaultBlacklist() []string {
	return []string{
		"rm -rf /",
		"rm -rf ~",
		"rm -rf *",
		"> /dev/",
		"mkfs",
		"dd if=",
		":(){ :|:& };:",
		"chmod -R 777 /",
		// Recursive forced rm of /, ~ or * in any flag order or spelling.
		`re:(?i)\brm\s+(?:--?[a-z-]+\s+)*(?:-[a-z]*(?:r[a-z]*f|f[a-z]*r)[a-z]*|(?:-[a-z]*r[a-z]*|--recursive)\s+(?:--?[a-z-]+\s+)*(?:-[a-z]*f[a-z]*|--force)|(?:-[a-z]*f[a-z]*|--force)\s+(?:--?[a-z-]+\s+)*(?:-[a-z]*r[a-z]*|--recursive))\s+(?:--?[a-z-]+\s+)*(?:/|~|\*)`,
	}
}

func defaultVisionPhrases() []string {
	return []string{
		"take a photo", "take photo", "take a picture", "take picture",
		"click a photo", "click a picture", "snap a photo",
		"capture image", "capture photo", "capture a photo",
		"what do you see", "what can you see", "describe what you see",
		"look at this", "look at that", "show me what",
		"open camera", "use camera", "use the camera",
		"scan this", "read this label", "read this text",
		"what does this look like",
		"what is this", "what is that",
		"what am i holding", "what's in front of me",
		"describe this", "describe that", "analyze this image",
		"identify this", "identify that",
	}
}

func defaultVisionWords() []string {
	return []string{
		"camera",
		"photograph",
		"snapshot",
		"selfie",
		"webcam",
	}
}
