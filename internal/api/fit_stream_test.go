package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcourtman/pulse-snmp-profiles/internal/profiles"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
)

// asyncResolver answers per address after an optional delay.
type asyncResolver struct {
	delays  map[string]time.Duration
	answers map[string]string
}

func (a *asyncResolver) ResolveByLabel(ctx context.Context, label string, addr netip.Addr, location, oid string) profiles.Result {
	return <-a.ResolveByLabelAsync(ctx, label, addr, location, oid)
}

func (a *asyncResolver) ResolveByLabelAsync(_ context.Context, _ string, addr netip.Addr, _, _ string) <-chan profiles.Result {
	out := make(chan profiles.Result, 1)
	go func() {
		defer close(out)
		time.Sleep(a.delays[addr.String()])
		label, ok := a.answers[addr.String()]
		if !ok {
			out <- profiles.Result{}
			return
		}
		out <- profiles.Result{Found: true, Config: snmp.AgentConfig{
			Address:       addr,
			Port:          161,
			Version:       snmp.Version2c,
			ReadCommunity: "topsecret",
			ProfileLabel:  label,
		}}
	}()
	return out
}

func dialStream(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + routeFitStream
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResult(t *testing.T, conn *websocket.Conn) FitStreamResult {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var res FitStreamResult
	require.NoError(t, conn.ReadJSON(&res))
	return res
}

func TestFitStreamResultsInCompletionOrder(t *testing.T) {
	resolver := &asyncResolver{
		delays:  map[string]time.Duration{"10.0.0.1": 200 * time.Millisecond},
		answers: map[string]string{"10.0.0.1": "slow", "10.0.0.2": "fast"},
	}
	conn := dialStream(t, NewRouter(resolver, stubCatalog{}, nil).Handler())

	require.NoError(t, conn.WriteJSON(FitStreamRequest{ID: "a", IP: "10.0.0.1"}))
	require.NoError(t, conn.WriteJSON(FitStreamRequest{ID: "b", IP: "10.0.0.2"}))

	first := readResult(t, conn)
	second := readResult(t, conn)

	assert.Equal(t, "b", first.ID)
	assert.True(t, first.Found)
	assert.Equal(t, "fast", first.Profile)

	assert.Equal(t, "a", second.ID)
	assert.Equal(t, "slow", second.Profile)
	require.NotNil(t, second.Config)
	assert.Equal(t, "********", second.Config.ReadCommunity)
}

func TestFitStreamNotFoundAndBadInput(t *testing.T) {
	resolver := &asyncResolver{answers: map[string]string{}}
	conn := dialStream(t, NewRouter(resolver, stubCatalog{}, nil).Handler())

	tests := []struct {
		name  string
		send  interface{}
		id    string
		code  string
		found bool
	}{
		{name: "no profile answered", send: FitStreamRequest{ID: "1", IP: "10.9.9.9"}, id: "1"},
		{name: "invalid ip", send: FitStreamRequest{ID: "2", IP: "nope"}, id: "2", code: "invalid_ip"},
		{name: "invalid oid", send: FitStreamRequest{ID: "3", IP: "10.0.0.1", OID: "sysName"}, id: "3", code: "invalid_oid"},
		{name: "not json", send: "plain text", code: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if text, ok := tt.send.(string); ok {
				require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
			} else {
				require.NoError(t, conn.WriteJSON(tt.send))
			}

			res := readResult(t, conn)
			assert.Equal(t, tt.id, res.ID)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, tt.found, res.Found)
			assert.Nil(t, res.Config)
		})
	}
}

func TestFitStreamClientClose(t *testing.T) {
	resolver := &asyncResolver{
		delays:  map[string]time.Duration{"10.0.0.1": 100 * time.Millisecond},
		answers: map[string]string{"10.0.0.1": "lab"},
	}
	conn := dialStream(t, NewRouter(resolver, stubCatalog{}, nil).Handler())

	require.NoError(t, conn.WriteJSON(FitStreamRequest{ID: "a", IP: "10.0.0.1"}))
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	// A result may or may not beat the close handshake; either way the stream ends cleanly.
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			return
		}
	}
}

func TestFitStreamRequiresAsyncResolver(t *testing.T) {
	h := NewRouter(&stubResolver{}, stubCatalog{}, nil).Handler()
	rec := serve(t, h, http.MethodGet, routeFitStream)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFitStreamOpenGauge(t *testing.T) {
	router := NewRouter(&asyncResolver{}, stubCatalog{}, nil, WithRegisterer(prometheus.NewRegistry()))
	conn := dialStream(t, router.Handler())

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(router.metrics.openStreams) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(router.metrics.openStreams) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
