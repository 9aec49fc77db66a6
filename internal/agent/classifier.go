package agent

import (
	"log/slog"
	"strings"
	"unicode"

	"ltl/internal/config"
	"ltl/internal/domain"
)

// DirectivePrefix starts a direct tool invocation, e.g.
// "/tool read_file path=notes.txt".
const DirectivePrefix = "/tool"

// Rule is one step of the classification order. Match returns the signal
// that fired, or "" when the rule does not apply.
type Rule struct {
	Name       string
	Kind       domain.IntentKind
	Confidence float64
	Match      func(lower string) string
}

// Classifier maps user text to an Intent using an ordered rule list. The
// first rule that matches wins, so vision beats a tool directive and both
// beat plain chat.
type Classifier struct {
	rules  []Rule
	logger *slog.Logger
}

func NewClassifier(cfg config.IntentConfig, logger *slog.Logger) *Classifier {
	phrases := lowerAll(cfg.VisionPhrases)
	words := lowerAll(cfg.VisionWords)

	rules := []Rule{
		{
			Name:       "vision_phrase",
			Kind:       domain.IntentVision,
			Confidence: 0.95,
			Match: func(lower string) string {
				for _, p := range phrases {
					if strings.Contains(lower, p) {
						return p
					}
				}
				return ""
			},
		},
		{
			Name:       "vision_word",
			Kind:       domain.IntentVision,
			Confidence: 0.85,
			Match: func(lower string) string {
				for _, tok := range strings.FieldsFunc(lower, notWordRune) {
					for _, w := range words {
						if tok == w {
							return w
						}
					}
				}
				return ""
			},
		},
		{
			Name:       "tool_directive",
			Kind:       domain.IntentToolDirect,
			Confidence: 1.0,
			Match: func(lower string) string {
				if lower == DirectivePrefix || strings.HasPrefix(lower, DirectivePrefix+" ") {
					return DirectivePrefix
				}
				return ""
			},
		},
		{
			Name:       "default",
			Kind:       domain.IntentChat,
			Confidence: 0.7,
			Match:      func(string) string { return "default" },
		},
	}
	return &Classifier{rules: rules, logger: logger}
}

// Rules returns the rules in priority order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify returns IntentUnknown for blank input.
func (c *Classifier) Classify(text string) domain.Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return domain.Intent{Kind: domain.IntentUnknown}
	}
	for _, r := range c.rules {
		if sig := r.Match(lower); sig != "" {
			c.logger.Debug("intent classified", "rule", r.Name, "kind", r.Kind, "signal", sig)
			return domain.Intent{Kind: r.Kind, Confidence: r.Confidence, MatchedSignal: sig}
		}
	}
	return domain.Intent{Kind: domain.IntentUnknown}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
}
