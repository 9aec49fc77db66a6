package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ltl/internal/domain"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MaxToolIterations(t *testing.T) {
	for _, n := range []int{0, 201} {
		cfg := Defaults()
		cfg.General.MaxToolIterations = n
		if err := Validate(cfg); err == nil {
			t.Fatalf("expected error for maxToolIterations=%d", n)
		}
	}
	for _, n := range []int{1, 200} {
		cfg := Defaults()
		cfg.General.MaxToolIterations = n
		if err := Validate(cfg); err != nil {
			t.Fatalf("maxToolIterations=%d should be valid: %v", n, err)
		}
	}
}

func TestValidate_BackendKind(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.Kind = "llamacpp"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "backend.kind") {
		t.Fatalf("expected backend.kind error, got %v", err)
	}

	cfg.Backend.Kind = "openai"
	if err := Validate(cfg); err != nil {
		t.Fatalf("openai backend should be valid: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Retry.MaxAttempts = 0
	cfg.Security.DefaultPolicy = "ask"
	cfg.Resources.KeepLoaded["audio"] = true

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"retry.maxAttempts", "security.defaultPolicy", `"audio"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

// --- Load ---

func TestLoad_JSONOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
  "backend": {"ollama": {"textModel": "llama3.2"}},
  "resources": {"keepLoaded": {"vision": true}}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.Ollama.TextModel != "llama3.2" {
		t.Errorf("textModel = %q", cfg.Backend.Ollama.TextModel)
	}
	if cfg.Backend.Ollama.VisionModel != "moondream" {
		t.Errorf("visionModel default lost: %q", cfg.Backend.Ollama.VisionModel)
	}
	policy := cfg.Resources.KeepLoadedPolicy()
	if !policy[domain.ResourceVision] || !policy[domain.ResourceTextGeneration] {
		t.Errorf("unexpected keep-loaded policy: %v", policy)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
general:
  logLevel: debug
  maxToolIterations: 5
backend:
  kind: openai
  openai:
    baseUrl: http://localhost:8080/v1
    textModel: local-model
intent:
  visionWords: [camera, lens]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.MaxToolIterations != 5 || cfg.General.LogLevel != "debug" {
		t.Errorf("general not applied: %+v", cfg.General)
	}
	if cfg.Backend.Kind != "openai" || cfg.Backend.OpenAI.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("backend not applied: %+v", cfg.Backend)
	}
	if len(cfg.Intent.VisionWords) != 2 || cfg.Intent.VisionWords[1] != "lens" {
		t.Errorf("visionWords = %v", cfg.Intent.VisionWords)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("LTL_TEST_MODEL", "qwen2.5")
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"backend": {"ollama": {
  "textModel": "${LTL_TEST_MODEL}",
  "baseUrl": "${LTL_TEST_UNSET:-http://gpu-box:11434}"
}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.Ollama.TextModel != "qwen2.5" {
		t.Errorf("textModel = %q", cfg.Backend.Ollama.TextModel)
	}
	if cfg.Backend.Ollama.BaseURL != "http://gpu-box:11434" {
		t.Errorf("baseUrl = %q", cfg.Backend.Ollama.BaseURL)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.Kind != "ollama" {
		t.Errorf("expected defaults, got kind %q", cfg.Backend.Kind)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		path := filepath.Join(t.TempDir(), "nested", name)
		cfg := Defaults()
		cfg.Backend.Ollama.TextModel = "phi4"
		cfg.Memory.DBPath = "/tmp/ltl.db"

		if err := Save(path, cfg); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if loaded.Backend.Ollama.TextModel != "phi4" {
			t.Errorf("%s: textModel = %q", name, loaded.Backend.Ollama.TextModel)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LTL_SET", "value")
	tests := []struct{ in, want string }{
		{"${LTL_SET}", "value"},
		{"${LTL_MISSING}", "${LTL_MISSING}"},
		{"${LTL_MISSING:-fallback}", "fallback"},
		{"a-${LTL_SET}-b", "a-value-b"},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Accessors ---

func TestGetSetByPath(t *testing.T) {
	cfg := Defaults()

	v, err := GetByPath(cfg, "backend.ollama.visionModel")
	if err != nil || v != "moondream" {
		t.Fatalf("GetByPath = %v, %v", v, err)
	}

	if err := SetByPath(cfg, "general.maxToolIterations", "7"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.General.MaxToolIterations != 7 {
		t.Errorf("maxToolIterations = %d", cfg.General.MaxToolIterations)
	}
	if err := SetByPath(cfg, "resources.keepLoaded.vision", "true"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if !cfg.Resources.KeepLoaded["vision"] {
		t.Error("keepLoaded.vision not set")
	}
	if _, err := GetByPath(cfg, "nope.path"); err == nil {
		t.Error("expected error for unknown path")
	}
}

func TestSanitize_MasksKey(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.OpenAI.APIKey = "sk-1234567890abcdef"
	out := Sanitize(cfg)
	if out.Backend.OpenAI.APIKey != "sk-1****cdef" {
		t.Errorf("masked = %q", out.Backend.OpenAI.APIKey)
	}
	if cfg.Backend.OpenAI.APIKey != "sk-1234567890abcdef" {
		t.Error("original config mutated")
	}
}

func TestListPaths_Sorted(t *testing.T) {
	keys, values := ListPaths(Defaults())
	if len(keys) == 0 {
		t.Fatal("no paths")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted at %d: %s > %s", i, keys[i-1], keys[i])
		}
	}
	if values["backend.kind"] != "ollama" {
		t.Errorf("backend.kind = %v", values["backend.kind"])
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
