package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"ltl/internal/domain"
)

// Config is the root configuration for ltl.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Backend   BackendConfig   `json:"backend"`
	Resources ResourcesConfig `json:"resources"`
	Retry     RetryConfig     `json:"retry"`
	Tools     ToolsConfig     `json:"tools"`
	Security  SecurityConfig  `json:"security"`
	Intent    IntentConfig    `json:"intent"`
	Memory    MemoryConfig    `json:"memory"`
	Vision    VisionConfig    `json:"vision"`
}

type GeneralConfig struct {
	Workspace         string `json:"workspace"`
	LogLevel          string `json:"logLevel"`
	LogFile           string `json:"logFile,omitempty"`
	MaxToolIterations int    `json:"maxToolIterations"`
	HistorySize       int    `json:"historySize"`
	SystemPrompt      string `json:"systemPrompt,omitempty"` // appended to the built-in prompt
}

// BackendConfig selects where generation and vision requests go.
type BackendConfig struct {
	Kind        string       `json:"kind"` // "ollama" | "openai"
	Temperature float64      `json:"temperature"`
	Ollama      OllamaConfig `json:"ollama"`
	OpenAI      OpenAIConfig `json:"openai"`
}

type OllamaConfig struct {
	BaseURL        string `json:"baseUrl"`
	TextModel      string `json:"textModel"`
	VisionModel    string `json:"visionModel"`
	KeepAlive      string `json:"keepAlive"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type OpenAIConfig struct {
	BaseURL        string `json:"baseUrl"`
	APIKey         string `json:"apiKey,omitempty"`
	TextModel      string `json:"textModel"`
	VisionModel    string `json:"visionModel"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	// RequestsPerMinute throttles calls to the hosted API; 0 disables it.
	RequestsPerMinute int `json:"requestsPerMinute"`
}

// ResourcesConfig is the keep-loaded policy, keyed by resource class name
// ("text_generation", "vision").
type ResourcesConfig struct {
	KeepLoaded map[string]bool `json:"keepLoaded"`
}

// KeepLoadedPolicy converts the config map into class keys.
func (r ResourcesConfig) KeepLoadedPolicy() map[domain.ResourceClass]bool {
	out := map[domain.ResourceClass]bool{
		domain.ResourceTextGeneration: true,
		domain.ResourceVision:         false,
	}
	for k, v := range r.KeepLoaded {
		if class, ok := domain.ParseResourceClass(k); ok && class != domain.ResourceNone {
			out[class] = v
		}
	}
	return out
}

type RetryConfig struct {
	MaxAttempts int     `json:"maxAttempts"`
	BaseDelayMs int     `json:"baseDelayMs"`
	MaxDelayMs  int     `json:"maxDelayMs"`
	Jitter      float64 `json:"jitter"`
}

type ToolsConfig struct {
	TimeoutSeconds      int             `json:"timeoutSeconds"`
	RestrictToWorkspace bool            `json:"restrictToWorkspace"`
	Disabled            []string        `json:"disabled,omitempty"`
	Shell               ShellToolConfig `json:"shell"`
	Web                 WebToolConfig   `json:"web"`
}

type ShellToolConfig struct {
	Enabled        bool `json:"enabled"`
	Timeout        int  `json:"timeout"`
	MaxOutputBytes int  `json:"maxOutputBytes"`
}

type WebToolConfig struct {
	Enabled          bool   `json:"enabled"`
	SearchEndpoint   string `json:"searchEndpoint"`
	LocationEndpoint string `json:"locationEndpoint"`
	UserAgent        string `json:"userAgent"`
}

type SecurityConfig struct {
	DefaultPolicy string   `json:"defaultPolicy"` // "allow" | "deny"
	Blacklist     []string `json:"blacklist"`
	Whitelist     []string `json:"whitelist"`
	AuditLog      bool     `json:"auditLog"`
}

type IntentConfig struct {
	VisionPhrases []string `json:"visionPhrases"`
	VisionWords   []string `json:"visionWords"`
}

type MemoryConfig struct {
	Enabled  bool   `json:"enabled"`
	DBPath   string `json:"dbPath"`
	LogTurns bool   `json:"logTurns"`
}

type VisionConfig struct {
	ImagePath string `json:"imagePath,omitempty"` // still image used when no camera is wired

	// CaptureCommand writes one image to stdout; ["screenshot"] uses the
	// platform screenshot tool. It takes precedence over ImagePath.
	CaptureCommand []string `json:"captureCommand,omitempty"`
	Prompt         string   `json:"prompt"`
}

// DefaultConfigDir returns the default config directory (~/.ltl).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ltl"
	}
	return filepath.Join(home, ".ltl")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file on top of Defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.Vision.ImagePath = ExpandPath(cfg.Vision.ImagePath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		cfg := Defaults()
		cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
		cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
		return cfg, nil
	}
	return Load(path)
}

// yamlToJSON decodes YAML into generic values and re-encodes them as JSON so
// both formats share the json struct tags.
func yamlToJSON(data []byte) ([]byte, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset ${VAR}
// with no default is left untouched.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg to path, as YAML when the extension says so.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	if isYAML(path) {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if data, err = yaml.Marshal(m); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxToolIterations < 1 || cfg.General.MaxToolIterations > 200 {
		errs = append(errs, "general.maxToolIterations must be between 1 and 200")
	}
	if cfg.General.HistorySize < 2 {
		errs = append(errs, "general.historySize must be >= 2")
	}

	switch cfg.Backend.Kind {
	case "ollama":
		if cfg.Backend.Ollama.BaseURL == "" {
			errs = append(errs, "backend.ollama.baseUrl is required")
		}
		if cfg.Backend.Ollama.TextModel == "" {
			errs = append(errs, "backend.ollama.textModel is required")
		}
	case "openai":
		if cfg.Backend.OpenAI.TextModel == "" {
			errs = append(errs, "backend.openai.textModel is required")
		}
		if cfg.Backend.OpenAI.RequestsPerMinute < 0 {
			errs = append(errs, "backend.openai.requestsPerMinute must be >= 0")
		}
	default:
		errs = append(errs, "backend.kind must be one of: ollama, openai")
	}
	if cfg.Backend.Temperature < 0 || cfg.Backend.Temperature > 2 {
		errs = append(errs, "backend.temperature must be between 0 and 2")
	}

	for k := range cfg.Resources.KeepLoaded {
		if class, ok := domain.ParseResourceClass(k); !ok || class == domain.ResourceNone {
			errs = append(errs, fmt.Sprintf("resources.keepLoaded: unknown resource class %q", k))
		}
	}

	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.maxAttempts must be >= 1")
	}
	if cfg.Retry.BaseDelayMs < 0 || cfg.Retry.MaxDelayMs < 0 {
		errs = append(errs, "retry delays must be >= 0")
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter > 1 {
		errs = append(errs, "retry.jitter must be between 0 and 1")
	}

	if cfg.Tools.TimeoutSeconds < 1 {
		errs = append(errs, "tools.timeoutSeconds must be >= 1")
	}
	if cfg.Tools.Shell.Timeout < 1 {
		errs = append(errs, "tools.shell.timeout must be >= 1")
	}

	switch cfg.Security.DefaultPolicy {
	case "allow", "deny":
	default:
		errs = append(errs, "security.defaultPolicy must be one of: allow, deny")
	}

	if cfg.Memory.Enabled && cfg.Memory.DBPath == "" {
		errs = append(errs, "memory.dbPath is required when memory is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
