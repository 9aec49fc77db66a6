package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocation_LooksUpAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"ip":"203.0.113.9","city":"Lisbon","region":"Lisbon","country":"PT","timezone":"Europe/Lisbon"}`)
	}))
	defer srv.Close()

	store := newFakeStore()
	r := NewRegistry(testLogger())
	r.MustRegister(NewLocationTool(WebConfig{LocationEndpoint: srv.URL, Retry: fastRetry()}, store))
	ctx := context.Background()

	res := r.Execute(ctx, "get_location", map[string]any{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Location: Lisbon, Lisbon, PT (timezone: Europe/Lisbon)", res.Data)
	assert.Equal(t, "system", store.memories["_cached_location"].Category)
	assert.Equal(t, "Europe/Lisbon", store.memories["_cached_timezone"].Value)

	res = r.Execute(ctx, "get_location", map[string]any{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Location: Lisbon, Lisbon, PT (timezone: Europe/Lisbon)", res.Data)
	assert.Equal(t, int32(1), hits.Load(), "second call served from cache")

	res = r.Execute(ctx, "get_location", map[string]any{"refresh": true})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int32(2), hits.Load())
}

func TestLocation_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := NewLocationTool(WebConfig{LocationEndpoint: srv.URL, Retry: fastRetry()}, nil)
	_, err := tool.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location unavailable")
}

func TestLocation_EmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ip":"10.0.0.1","bogon":true}`)
	}))
	defer srv.Close()

	tool := NewLocationTool(WebConfig{LocationEndpoint: srv.URL, Retry: fastRetry()}, newFakeStore())
	_, err := tool.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}
