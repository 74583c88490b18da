// File: internal/inspector/websocket_test.go
package inspector

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
	"github.com/xkilldash9x/scalpel-inspector/internal/mocks"
	"github.com/xkilldash9x/scalpel-inspector/internal/observability"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func roundTrip(t *testing.T, conn *websocket.Conn, req string) wireResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return decode(t, msg)
}

func TestServer_RoundTrip(t *testing.T) {
	drv := mocks.NewMockDriver()
	drv.On("ElementOrNull", mock.Anything, "id", "submit").Return(mocks.NewMockElement("elem-42"), nil)
	d := newTestDispatcher(t, drv, nil)

	srv := httptest.NewServer(NewServer(d, nil, nil, zap.NewNop()).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, `{"id":"1","op":"fetchElement","strategy":"id","selector":"submit"}`)
	assert.True(t, resp.OK)
	assert.Equal(t, "elem-42", resp.Result["id"])

	resp = roundTrip(t, conn, `{"id":"2","op":"fetchElement","strategy":"id"}`)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "selector")
}

func TestServer_SharedSessionAcrossConnections(t *testing.T) {
	drv := mocks.NewMockDriver()
	drv.On("Elements", mock.Anything, "css selector", "a").Return([]methodhandler.Element{}, nil)
	d := newTestDispatcher(t, drv, nil)

	srv := httptest.NewServer(NewServer(d, nil, nil, zap.NewNop()).Handler())
	defer srv.Close()

	first, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer first.Close()
	second, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer second.Close()

	req := `{"op":"fetchElements","strategy":"css selector","selector":"a"}`
	assert.Equal(t, "els1", roundTrip(t, first, req).Result["variableName"])
	assert.Equal(t, "els2", roundTrip(t, second, req).Result["variableName"])
}

func TestServer_CheckOrigin(t *testing.T) {
	d := newTestDispatcher(t, mocks.NewMockDriver(), nil)
	srv := httptest.NewServer(NewServer(d, []string{"https://inspector.example"}, nil, zap.NewNop()).Handler())
	defer srv.Close()

	allowed := http.Header{"Origin": []string{"https://inspector.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), allowed)
	require.NoError(t, err)
	conn.Close()

	denied := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), denied)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	t.Run("Wildcard", func(t *testing.T) {
		check := checkOrigin([]string{"*"})
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Origin", "http://anything.local")
		assert.True(t, check(r))
	})

	t.Run("DefaultIsSameOrigin", func(t *testing.T) {
		assert.Nil(t, checkOrigin(nil))
	})
}

func TestServer_Metrics(t *testing.T) {
	metrics := observability.NewMetrics("test_ws")
	d := newTestDispatcher(t, mocks.NewMockDriver(), metrics)

	srv := httptest.NewServer(NewServer(d, nil, metrics, zap.NewNop()).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()
	roundTrip(t, conn, `{"op":"restart"}`)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_ws_requests_total{op="restart",outcome="ok"} 1`)
}

func TestServer_NoMetricsRoute(t *testing.T) {
	d := newTestDispatcher(t, mocks.NewMockDriver(), nil)
	srv := httptest.NewServer(NewServer(d, nil, nil, zap.NewNop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Serve(t *testing.T) {
	t.Run("StopsOnContextCancel", func(t *testing.T) {
		d := newTestDispatcher(t, mocks.NewMockDriver(), nil)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- NewServer(d, nil, nil, zap.NewNop()).Serve(ctx, ln) }()

		conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
		require.NoError(t, err)
		defer conn.Close()

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("server did not stop after cancellation")
		}

		// The open connection was closed by the server.
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("StopsOnSessionLoss", func(t *testing.T) {
		drv := mocks.NewMockDriver()
		drv.On("Invoke", mock.Anything, "refresh", mock.Anything).Return(nil, nil)
		drv.On("Source", mock.Anything).Return("", &methodhandler.SessionError{Status: methodhandler.StatusInvalidSession, Message: "target closed"})
		drv.On("TakeScreenshot", mock.Anything).Return("", nil)
		d := newTestDispatcher(t, drv, nil)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		done := make(chan error, 1)
		go func() { done <- NewServer(d, nil, nil, zap.NewNop()).Serve(context.Background(), ln) }()

		conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
		require.NoError(t, err)
		defer conn.Close()

		resp := roundTrip(t, conn, `{"op":"executeMethod","method":"refresh"}`)
		assert.False(t, resp.OK)
		assert.Equal(t, methodhandler.StatusInvalidSession, resp.Status)

		_, _, err = conn.ReadMessage()
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)

		select {
		case err := <-done:
			require.Error(t, err)
			assert.True(t, methodhandler.IsSessionLost(err))
		case <-time.After(10 * time.Second):
			t.Fatal("server did not stop after the session was lost")
		}
	})
}
