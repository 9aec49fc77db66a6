package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/domain"
)

func TestCoerce_Unambiguous(t *testing.T) {
	tests := []struct {
		typ  domain.ParamType
		in   any
		want any
	}{
		{domain.ParamInt, "30", int64(30)},
		{domain.ParamInt, " 7 ", int64(7)},
		{domain.ParamInt, 30.0, int64(30)},
		{domain.ParamInt, "30.0", int64(30)},
		{domain.ParamInt, json.Number("12"), int64(12)},
		{domain.ParamInt, 5, int64(5)},
		{domain.ParamInt, "9223372036854775807", int64(9223372036854775807)},
		{domain.ParamInt, -4e18, int64(-4000000000000000000)},
		{domain.ParamFloat, "2.5", 2.5},
		{domain.ParamFloat, 3, 3.0},
		{domain.ParamBool, "true", true},
		{domain.ParamBool, "No", false},
		{domain.ParamBool, false, false},
		{domain.ParamString, 12.5, "12.5"},
		{domain.ParamString, int64(9), "9"},
		{domain.ParamString, true, "true"},
		{domain.ParamString, "plain", "plain"},
	}
	for _, tt := range tests {
		got, err := coerce(tt.typ, tt.in)
		require.NoError(t, err, "%s <- %#v", tt.typ, tt.in)
		assert.Equal(t, tt.want, got, "%s <- %#v", tt.typ, tt.in)
	}
}

func TestCoerce_Rejected(t *testing.T) {
	tests := []struct {
		typ domain.ParamType
		in  any
	}{
		{domain.ParamInt, "thirty"},
		{domain.ParamInt, 2.5},
		{domain.ParamInt, true},
		{domain.ParamInt, "9999999999999999999"},
		{domain.ParamInt, 1e19},
		{domain.ParamInt, "1e30"},
		{domain.ParamInt, -1e19},
		{domain.ParamInt, json.Number("1e30")},
		{domain.ParamFloat, "abc"},
		{domain.ParamBool, "maybe"},
		{domain.ParamBool, 1},
		{domain.ParamString, []any{"a"}},
		{domain.ParamString, map[string]any{}},
	}
	for _, tt := range tests {
		_, err := coerce(tt.typ, tt.in)
		assert.Error(t, err, "%s <- %#v", tt.typ, tt.in)
	}
}

func TestCoerceArgs_Errors(t *testing.T) {
	params := []domain.ParamSpec{
		{Name: "path", Type: domain.ParamString, Required: true},
		{Name: "count", Type: domain.ParamInt},
	}

	_, err := CoerceArgs(params, map[string]any{"path": nil})
	assert.ErrorIs(t, err, domain.ErrMissingParameter)
	assert.EqualError(t, err, "missing parameter path")

	_, err = CoerceArgs(params, map[string]any{"path": "a", "count": "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "invalid parameter count:")

	for _, big := range []any{"9999999999999999999", 1e19, "1e30"} {
		out, err := CoerceArgs(params, map[string]any{"path": "a", "count": big})
		assert.ErrorIs(t, err, domain.ErrInvalidParameter, "%v", big)
		assert.Contains(t, err.Error(), "expected integer in range")
		assert.Nil(t, out)
	}

	out, err := CoerceArgs(params, map[string]any{"path": "a"})
	require.NoError(t, err)
	assert.NotContains(t, out, "count", "optional without default stays absent")
}

func TestToolParameters_Schema(t *testing.T) {
	schema := ToolParameters([]domain.ParamSpec{
		{Name: "q", Type: domain.ParamString, Required: true, Description: "query"},
		{Name: "limit", Type: domain.ParamInt, Default: 5},
		{Name: "exact", Type: domain.ParamBool},
		{Name: "ratio", Type: domain.ParamFloat},
	})
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "string", props["q"].(map[string]any)["type"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, 5, props["limit"].(map[string]any)["default"])
	assert.Equal(t, "boolean", props["exact"].(map[string]any)["type"])
	assert.Equal(t, "number", props["ratio"].(map[string]any)["type"])
	assert.Equal(t, []string{"q"}, schema["required"])

	empty := ToolParameters(nil)
	assert.NotContains(t, empty, "required")
}
