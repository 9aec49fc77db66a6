package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ltl/internal/domain"
)

const (
	locationKey      = "_cached_location"
	timezoneKey      = "_cached_timezone"
	locationCategory = "system"
)

// LocationTool looks up the machine's approximate location from its public
// IP and caches the answer in the memory store.
type LocationTool struct {
	cfg   WebConfig
	store domain.MemoryStore // optional
}

func NewLocationTool(cfg WebConfig, store domain.MemoryStore) *LocationTool {
	return &LocationTool{cfg: cfg.withDefaults(), store: store}
}

func (t *LocationTool) Name() string { return "get_location" }
func (t *LocationTool) Description() string {
	return "Get the user's approximate location (city, region, country) and timezone."
}
func (t *LocationTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "refresh", Type: domain.ParamBool, Default: false, Description: "Ignore the cached location and look it up again"},
	}
}

type ipInfo struct {
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Timezone string `json:"timezone"`
}

func (t *LocationTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if !ArgBool(args, "refresh") {
		if loc, tz, ok := t.cached(ctx); ok {
			return formatLocation(loc, tz), nil
		}
	}

	body, err := t.cfg.getBody(ctx, t.cfg.LocationEndpoint, 64*1024)
	if err != nil {
		return nil, fmt.Errorf("location unavailable: %w", err)
	}
	var info ipInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("location unavailable: bad response: %w", err)
	}
	var parts []string
	for _, p := range []string{info.City, info.Region, info.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("location unavailable: empty response")
	}
	loc := strings.Join(parts, ", ")

	if t.store != nil {
		for _, m := range []domain.MemoryEntry{
			{Key: locationKey, Value: loc, Category: locationCategory},
			{Key: timezoneKey, Value: info.Timezone, Category: locationCategory},
		} {
			if err := t.store.SaveMemory(ctx, m); err != nil {
				return nil, fmt.Errorf("cache location: %w", err)
			}
		}
	}
	return formatLocation(loc, info.Timezone), nil
}

func (t *LocationTool) cached(ctx context.Context) (loc, tz string, ok bool) {
	if t.store == nil {
		return "", "", false
	}
	entries, err := t.store.ListMemories(ctx, locationCategory)
	if err != nil {
		return "", "", false
	}
	for _, m := range entries {
		switch m.Key {
		case locationKey:
			loc = m.Value
		case timezoneKey:
			tz = m.Value
		}
	}
	return loc, tz, loc != ""
}

func formatLocation(loc, tz string) string {
	if tz == "" {
		return "Location: " + loc
	}
	return fmt.Sprintf("Location: %s (timezone: %s)", loc, tz)
}

var _ domain.Tool = (*LocationTool)(nil)
