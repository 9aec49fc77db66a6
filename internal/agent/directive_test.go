package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirective_KeyValue(t *testing.T) {
	d, err := ParseDirective(`/tool write_file path=notes.txt content="hello world" append=true`)
	require.NoError(t, err)
	assert.Equal(t, "write_file", d.Tool)
	assert.Equal(t, map[string]any{"path": "notes.txt", "content": "hello world", "append": "true"}, d.Args)
}

func TestParseDirective_JSON(t *testing.T) {
	d, err := ParseDirective(`/tool web_search {"query": "go generics", "max_results": 3}`)
	require.NoError(t, err)
	assert.Equal(t, "web_search", d.Tool)
	assert.Equal(t, "go generics", d.Args["query"])
	assert.Equal(t, 3.0, d.Args["max_results"])
}

func TestParseDirective_NoArgs(t *testing.T) {
	d, err := ParseDirective("/tool get_time")
	require.NoError(t, err)
	assert.Equal(t, "get_time", d.Tool)
	assert.Empty(t, d.Args)
}

func TestParseDirective_Errors(t *testing.T) {
	for _, in := range []string{
		"/tool",
		"/tool   ",
		`/tool web_search {"query": `,
		"/tool read_file notes.txt",
		`/tool read_file path="notes.txt`,
		"hello",
	} {
		_, err := ParseDirective(in)
		assert.Error(t, err, in)
	}
}

func TestToolArgs(t *testing.T) {
	args, err := ToolArgs("write_file", []string{"path=a b.txt", "content=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "a b.txt", "content": "x=y"}, args)

	args, err = ToolArgs("list_dir", []string{`{"recursive": true}`})
	require.NoError(t, err)
	assert.Equal(t, true, args["recursive"])

	args, err = ToolArgs("get_time", nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = ToolArgs("read_file", []string{"=oops"})
	assert.Error(t, err)
}
