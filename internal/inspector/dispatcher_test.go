// File: internal/inspector/dispatcher_test.go
package inspector

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
	"github.com/xkilldash9x/scalpel-inspector/internal/mocks"
	"github.com/xkilldash9x/scalpel-inspector/internal/observability"
)

func decode(t *testing.T, raw []byte) wireResponse {
	t.Helper()
	var r wireResponse
	require.NoError(t, json.Unmarshal(raw, &r), "raw: %s", raw)
	return r
}

func TestDispatcher_EchoesRequestID(t *testing.T) {
	drv := mocks.NewMockDriver()
	d := newTestDispatcher(t, drv, nil)

	raw, lost := d.Do(context.Background(), []byte(`{"id":"req-7","op":"restart"}`))
	require.NoError(t, lost)
	assert.Contains(t, string(raw), `"id":"req-7"`)

	raw, lost = d.Do(context.Background(), []byte(`{"id":"req-8","op":"bogus"}`))
	require.NoError(t, lost)
	assert.Contains(t, string(raw), `"id":"req-8"`)
	assert.False(t, decode(t, raw).OK)
}

func TestDispatcher_Metrics(t *testing.T) {
	drv := mocks.NewMockDriver()
	drv.On("ElementOrNull", mock.Anything, "id", "q").Return(mocks.NewMockElement("q-1"), nil)
	drv.On("Invoke", mock.Anything, "title", mock.Anything).Return("Home", nil)
	drv.On("Source", mock.Anything).Return("", errors.New("renderer busy"))
	drv.On("TakeScreenshot", mock.Anything).Return("iVBORw0KGgo=", nil)

	metrics := observability.NewMetrics("test_dispatcher")
	d := newTestDispatcher(t, drv, metrics)
	ctx := context.Background()

	_, lost := d.Do(ctx, []byte(`{"op":"fetchElement","strategy":"id","selector":"q"}`))
	require.NoError(t, lost)
	_, lost = d.Do(ctx, []byte(`{"op":"executeMethod","method":"title"}`))
	require.NoError(t, lost)
	_, lost = d.Do(ctx, []byte(`{"op":"executeElementCommand","elementId":"nope","method":"click"}`))
	require.NoError(t, lost)

	series, err := testutil.GatherAndCount(metrics.Registry(),
		"test_dispatcher_requests_total",
		"test_dispatcher_snapshot_failures_total",
		"test_dispatcher_cached_elements",
	)
	require.NoError(t, err)
	// Three request series (fetchElement/ok, executeMethod/ok, executeElementCommand/error),
	// one snapshot failure series and the gauge.
	assert.Equal(t, 5, series)

	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(`
# HELP test_dispatcher_cached_elements Number of elements in the session cache
# TYPE test_dispatcher_cached_elements gauge
test_dispatcher_cached_elements 1
# HELP test_dispatcher_snapshot_failures_total Snapshot payloads that could not be retrieved
# TYPE test_dispatcher_snapshot_failures_total counter
test_dispatcher_snapshot_failures_total{payload="source"} 1
`), "test_dispatcher_cached_elements", "test_dispatcher_snapshot_failures_total"))
}

func TestDispatcher_FailedSnapshotPayloadsAreOmitted(t *testing.T) {
	t.Run("BothFail", func(t *testing.T) {
		drv := mocks.NewMockDriver()
		drv.On("Source", mock.Anything).Return("", errors.New("renderer busy"))
		drv.On("TakeScreenshot", mock.Anything).Return("", errors.New("compositor gone"))
		d := newTestDispatcher(t, drv, nil)

		raw, lost := d.Do(context.Background(), []byte(`{"op":"executeMethod","method":"source"}`))
		require.NoError(t, lost)
		resp := decode(t, raw)
		require.True(t, resp.OK, resp.Error)

		assert.NotContains(t, resp.Result, "source")
		assert.NotContains(t, resp.Result, "screenshot")
		assert.Equal(t, "renderer busy", resp.Result["sourceError"])
		assert.Equal(t, "compositor gone", resp.Result["screenshotError"])
	})

	t.Run("EmptyPayloadIsKept", func(t *testing.T) {
		drv := mocks.NewMockDriver()
		drv.On("Source", mock.Anything).Return("", nil)
		drv.On("TakeScreenshot", mock.Anything).Return("", errors.New("compositor gone"))
		d := newTestDispatcher(t, drv, nil)

		raw, lost := d.Do(context.Background(), []byte(`{"op":"executeMethod","method":"screenshot"}`))
		require.NoError(t, lost)
		resp := decode(t, raw)
		require.True(t, resp.OK, resp.Error)

		assert.Contains(t, resp.Result, "source")
		assert.Equal(t, "", resp.Result["source"])
		assert.NotContains(t, resp.Result, "sourceError")
		assert.NotContains(t, resp.Result, "screenshot")
	})
}

func TestDispatcher_UnknownOpsShareOneMetricLabel(t *testing.T) {
	metrics := observability.NewMetrics("test_unknown_ops")
	d := newTestDispatcher(t, mocks.NewMockDriver(), metrics)
	ctx := context.Background()

	for _, op := range []string{"teleport", "self-destruct", "Restart"} {
		raw, lost := d.Do(ctx, []byte(`{"op":"`+op+`"}`))
		require.NoError(t, lost)
		assert.False(t, decode(t, raw).OK)
	}
	_, lost := d.Do(ctx, []byte(`{"op":"restart"}`))
	require.NoError(t, lost)

	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(`
# HELP test_unknown_ops_requests_total Total number of inspector requests
# TYPE test_unknown_ops_requests_total counter
test_unknown_ops_requests_total{op="restart",outcome="ok"} 1
test_unknown_ops_requests_total{op="unknown",outcome="error"} 3
`), "test_unknown_ops_requests_total"))
}

func TestDispatcher_SessionLossIsSticky(t *testing.T) {
	drv := mocks.NewMockDriver()
	gone := &methodhandler.SessionError{Status: methodhandler.StatusInvalidSession, Message: "target closed"}
	drv.On("Invoke", mock.Anything, "back", mock.Anything).Return(nil, gone)

	metrics := observability.NewMetrics("test_sticky")
	d := newTestDispatcher(t, drv, metrics)
	ctx := context.Background()

	raw, lost := d.Do(ctx, []byte(`{"op":"executeMethod","method":"back"}`))
	require.Error(t, lost)
	assert.True(t, methodhandler.IsSessionLost(lost))
	assert.Equal(t, methodhandler.StatusInvalidSession, decode(t, raw).Status)
	assert.ErrorIs(t, d.Lost(), gone)

	// Later requests never reach the handler.
	raw, lost = d.Do(ctx, []byte(`{"op":"entries"}`))
	require.Error(t, lost)
	resp := decode(t, raw)
	assert.False(t, resp.OK)
	assert.Equal(t, methodhandler.StatusInvalidSession, resp.Status)
	assert.Contains(t, resp.Error, ErrSessionClosed.Error())
	drv.AssertNumberOfCalls(t, "Invoke", 1)

	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(`
# HELP test_sticky_requests_total Total number of inspector requests
# TYPE test_sticky_requests_total counter
test_sticky_requests_total{op="executeMethod",outcome="session_lost"} 1
`), "test_sticky_requests_total"))
}

func TestDispatcher_SerializesConcurrentRequests(t *testing.T) {
	drv := mocks.NewMockDriver()
	drv.On("Elements", mock.Anything, "css selector", "li").Return([]methodhandler.Element{}, nil)
	d := newTestDispatcher(t, drv, nil)

	const n = 20
	names := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, _ := d.Do(context.Background(), []byte(`{"op":"fetchElements","strategy":"css selector","selector":"li"}`))
			var r wireResponse
			if assert.NoError(t, json.Unmarshal(raw, &r)) {
				name, _ := r.Result["variableName"].(string)
				names <- name
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool)
	for name := range names {
		assert.False(t, seen[name], "collection name %s handed out twice", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["els1"])
	assert.True(t, seen["els20"])
}
