package agent

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/config"
	"ltl/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func defaultClassifier() *Classifier {
	return NewClassifier(config.Defaults().Intent, testLogger())
}

func TestClassify(t *testing.T) {
	c := defaultClassifier()
	cases := []struct {
		text   string
		kind   domain.IntentKind
		conf   float64
		signal string
	}{
		{"hey, can you look at this and tell me what you see", domain.IntentVision, 0.95, "look at this"},
		{"What do you see?", domain.IntentVision, 0.95, "what do you see"},
		{"open the camera please", domain.IntentVision, 0.85, "camera"},
		{"is my webcam on", domain.IntentVision, 0.85, "webcam"},
		{"/tool get_time", domain.IntentToolDirect, 1.0, "/tool"},
		{"/TOOL read_file path=a.txt", domain.IntentToolDirect, 1.0, "/tool"},
		{"tell me a joke", domain.IntentChat, 0.7, "default"},
		{"the cameraman left", domain.IntentChat, 0.7, "default"},
		{"/toolbox is not a directive", domain.IntentChat, 0.7, "default"},
	}
	for _, tc := range cases {
		got := c.Classify(tc.text)
		assert.Equal(t, tc.kind, got.Kind, tc.text)
		assert.Equal(t, tc.conf, got.Confidence, tc.text)
		assert.Equal(t, tc.signal, got.MatchedSignal, tc.text)
	}
}

func TestClassify_VisionBeatsDirective(t *testing.T) {
	got := defaultClassifier().Classify("/tool web_search query=\"what do you see\"")
	assert.Equal(t, domain.IntentVision, got.Kind)
}

func TestClassify_Blank(t *testing.T) {
	c := defaultClassifier()
	for _, in := range []string{"", "   ", "\n\t"} {
		assert.Equal(t, domain.IntentUnknown, c.Classify(in).Kind)
	}
}

func TestClassify_CustomTriggers(t *testing.T) {
	c := NewClassifier(config.IntentConfig{VisionPhrases: []string{"  Peek  "}, VisionWords: []string{"Lens"}}, testLogger())
	assert.Equal(t, domain.IntentVision, c.Classify("take a PEEK").Kind)
	assert.Equal(t, domain.IntentVision, c.Classify("clean the lens").Kind)
	assert.Equal(t, domain.IntentChat, c.Classify("what do you see").Kind)
}

func TestRules_Order(t *testing.T) {
	rules := defaultClassifier().Rules()
	require.Len(t, rules, 4)
	names := []string{rules[0].Name, rules[1].Name, rules[2].Name, rules[3].Name}
	assert.Equal(t, []string{"vision_phrase", "vision_word", "tool_directive", "default"}, names)

	rules[0].Name = "changed"
	assert.Equal(t, "vision_phrase", defaultClassifier().Rules()[0].Name)
}
