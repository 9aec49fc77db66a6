package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ltl/internal/domain"
	"ltl/internal/retry"
)

const (
	webTimeout       = 15 * time.Second
	fetchMaxBytes    = 512 * 1024
	defaultUserAgent = "Mozilla/5.0 (compatible; ltl/1.0)"
)

// WebConfig is shared by web_search and web_fetch.
type WebConfig struct {
	SearchEndpoint string // DuckDuckGo Instant Answer compatible endpoint
	// LocationEndpoint answers ipinfo.io style JSON for get_location.
	LocationEndpoint string
	UserAgent      string
	Client         *http.Client
	Retry          retry.Policy
}

func (c WebConfig) withDefaults() WebConfig {
	if c.SearchEndpoint == "" {
		c.SearchEndpoint = "https://api.duckduckgo.com/"
	}
	if c.LocationEndpoint == "" {
		c.LocationEndpoint = "https://ipinfo.io/json"
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: webTimeout}
	}
	return c
}

// getBody performs a GET and returns at most limit bytes of the body. Non-2xx
// statuses become *retry.StatusError so the retry policy can classify them.
func (c WebConfig) getBody(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	return retry.DoValue(ctx, c.Retry, "GET "+rawURL, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("User-Agent", c.UserAgent)

		resp, err := c.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return io.ReadAll(io.LimitReader(resp.Body, limit))
	})
}

// --- WebSearchTool ---

// WebSearchTool queries the DuckDuckGo Instant Answer API.
type WebSearchTool struct{ cfg WebConfig }

func NewWebSearchTool(cfg WebConfig) *WebSearchTool {
	return &WebSearchTool{cfg: cfg.withDefaults()}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web for information. Use for current events, facts, or anything you're unsure about."
}
func (t *WebSearchTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "query", Type: domain.ParamString, Required: true, Description: "Search query"},
		{Name: "max_results", Type: domain.ParamInt, Default: 5, Description: "Maximum number of results"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query := strings.TrimSpace(ArgString(args, "query"))
	if query == "" {
		return nil, fmt.Errorf("%w query", domain.ErrMissingParameter)
	}
	maxResults := ArgInt(args, "max_results", 5)
	if maxResults < 1 {
		maxResults = 1
	}

	endpoint, err := url.Parse(t.cfg.SearchEndpoint)
	if err != nil {
		return nil, fmt.Errorf("search endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	endpoint.RawQuery = q.Encode()

	body, err := t.cfg.getBody(ctx, endpoint.String(), fetchMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	var ddg ddgResponse
	if err := json.Unmarshal(body, &ddg); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	var results []string
	if ddg.Answer != "" {
		results = append(results, "Answer: "+ddg.Answer)
	}
	if ddg.Abstract != "" {
		results = append(results, fmt.Sprintf("## %s\n%s\nSource: %s", ddg.Heading, ddg.Abstract, ddg.AbstractURL))
	}
	for _, topic := range ddg.flatTopics() {
		if len(results) >= maxResults {
			break
		}
		results = append(results, fmt.Sprintf("- %s (%s)", topic.Text, topic.FirstURL))
	}

	if len(results) == 0 {
		return fmt.Sprintf("No instant results found for: %s. Try a more specific query.", query), nil
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return strings.Join(results, "\n\n"), nil
}

type ddgResponse struct {
	Abstract      string     `json:"Abstract"`
	AbstractURL   string     `json:"AbstractURL"`
	Heading       string     `json:"Heading"`
	Answer        string     `json:"Answer"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"` // category groups nest one level
}

func (r ddgResponse) flatTopics() []ddgTopic {
	var out []ddgTopic
	for _, t := range r.RelatedTopics {
		if t.Text != "" {
			out = append(out, t)
		}
		for _, sub := range t.Topics {
			if sub.Text != "" {
				out = append(out, sub)
			}
		}
	}
	return out
}

// --- WebFetchTool ---

type WebFetchTool struct{ cfg WebConfig }

func NewWebFetchTool(cfg WebConfig) *WebFetchTool {
	return &WebFetchTool{cfg: cfg.withDefaults()}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetch a web page by URL and return its text content with HTML stripped."
}
func (t *WebFetchTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "url", Type: domain.ParamString, Required: true, Description: "Full URL (http:// or https://)"},
		{Name: "max_chars", Type: domain.ParamInt, Default: 5000, Description: "Maximum characters of text to return"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL := strings.TrimSpace(ArgString(args, "url"))
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q (only http/https allowed)", parsed.Scheme)
	}

	body, err := t.cfg.getBody(ctx, rawURL, fetchMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	text := stripHTMLTags(string(body))
	maxChars := ArgInt(args, "max_chars", 5000)
	if runes := []rune(text); maxChars > 0 && len(runes) > maxChars {
		text = string(runes[:maxChars]) + "\n... (truncated)"
	}
	return text, nil
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
)

// stripHTMLTags drops scripts, styles and tags, unescapes entities, and
// removes blank lines.
func stripHTMLTags(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "\n")
	s = html.UnescapeString(s)

	var cleaned []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

var (
	_ domain.Tool = (*WebSearchTool)(nil)
	_ domain.Tool = (*WebFetchTool)(nil)
)
