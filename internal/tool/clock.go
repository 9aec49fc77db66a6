package tool

import (
	"context"
	"time"

	"github.com/ncruces/go-strftime"

	"ltl/internal/domain"
)

const defaultTimeFormat = "%Y-%m-%d %H:%M:%S"

// TimeTool reports the local time using a strftime format.
type TimeTool struct {
	now func() time.Time
}

func NewTimeTool() *TimeTool { return &TimeTool{now: time.Now} }

func (t *TimeTool) Name() string { return "get_time" }
func (t *TimeTool) Description() string {
	return "Get the current local date and time."
}
func (t *TimeTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "format", Type: domain.ParamString, Default: defaultTimeFormat, Description: "strftime format, e.g. %A %d %B %Y"},
	}
}

func (t *TimeTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	format := ArgString(args, "format")
	if format == "" {
		format = defaultTimeFormat
	}
	now := t.now()
	return map[string]any{
		"time":     strftime.Format(format, now),
		"timezone": now.Format("MST"),
		"unix":     now.Unix(),
	}, nil
}

var _ domain.Tool = (*TimeTool)(nil)
