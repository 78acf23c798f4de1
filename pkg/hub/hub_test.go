// pkg/hub/hub_test.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, config Config) (*Hub, *httptest.Server) {
	t.Helper()
	h, err := New(config, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(h.Handler())
	t.Cleanup(ts.Close)
	return h, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// connectServer performs the server handshake, waits for the server to
// appear in the directory, and returns the connection and the
// hub-assigned identifier.
func connectServer(t *testing.T, ts *httptest.Server, name string) (*websocket.Conn, string) {
	t.Helper()
	conn := dial(t, wsURL(ts, "/connect"))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, guid, err := conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(string(guid)+"|"+name)))

	require.Eventually(t, func() bool {
		for _, e := range getServers(t, ts) {
			if e.ID.String() == string(guid) {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	return conn, string(guid)
}

func getServers(t *testing.T, ts *httptest.Server) []serverEntry {
	t.Helper()
	resp, err := http.Get(ts.URL + "/servers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []serverEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	return entries
}

func TestServersEmpty(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	entries := getServers(t, ts)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestServerRegistration(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	_, guid := connectServer(t, ts, "Alice's Server")

	require.Eventually(t, func() bool {
		return len(getServers(t, ts)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	entries := getServers(t, ts)
	assert.Equal(t, guid, entries[0].ID.String())
	assert.Equal(t, "Alice's Server", entries[0].Name)
}

func TestEmptyNameGetsGenerated(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	connectServer(t, ts, "")

	require.Eventually(t, func() bool {
		return len(getServers(t, ts)) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, getServers(t, ts)[0].Name)
}

func TestBadHandshakeReply(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	conn := dial(t, wsURL(ts, "/connect"))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte("00000000-0000-0000-0000-000000000000|Mallory")))

	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseProtocolError, ce.Code)
}

func TestClientToServerRelay(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	srv, guid := connectServer(t, ts, "relay test")

	client := dial(t, wsURL(ts, "/connect/"+guid))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello")))

	srv.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := srv.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestServerFanout(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	srv, guid := connectServer(t, ts, "fanout test")

	c1 := dial(t, wsURL(ts, "/connect/"+guid))
	c2 := dial(t, wsURL(ts, "/connect/"+guid))

	// A client's frame reaching the server proves its attachment is
	// complete, so the fan-out below cannot miss either client.
	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte("ready1")))
	require.NoError(t, c2.WriteMessage(websocket.TextMessage, []byte("ready2")))
	srv.SetReadDeadline(time.Now().Add(5 * time.Second))
	for n := 0; n < 2; n++ {
		_, _, err := srv.ReadMessage()
		require.NoError(t, err)
	}

	require.NoError(t, srv.WriteMessage(websocket.TextMessage, []byte("position update")))

	for _, c := range []*websocket.Conn{c1, c2} {
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "position update", string(msg))
	}
}

func TestServerCloseDropsClients(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	srv, guid := connectServer(t, ts, "closing")

	client := dial(t, wsURL(ts, "/connect/"+guid))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ready")))
	srv.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := srv.ReadMessage()
	require.NoError(t, err)

	srv.Close()

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = client.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
}

func TestUnknownServer(t *testing.T) {
	_, ts := newTestHub(t, Config{})

	conn := dial(t, wsURL(ts, "/connect/12345678-1234-1234-1234-123456789abc"))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
}

func TestBinaryFrameRejected(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	_, guid := connectServer(t, ts, "text only")

	client := dial(t, wsURL(ts, "/connect/"+guid))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad}))

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := client.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseInvalidFramePayloadData, ce.Code)
}

func TestDirectoryTimestamp(t *testing.T) {
	_, ts := newTestHub(t, Config{})

	stamp := func() time.Time {
		resp, err := http.Get(ts.URL + "/cache/servers")
		require.NoError(t, err)
		defer resp.Body.Close()
		var t0 time.Time
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&t0))
		return t0
	}

	before := stamp()
	connectServer(t, ts, "timestamped")
	require.Eventually(t, func() bool {
		return stamp().After(before)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStaticNotConfigured(t *testing.T) {
	_, ts := newTestHub(t, Config{})
	for _, path := range []string{"/boundaries", "/topologies", "/geos",
		"/cache/boundaries", "/cache/topologies", "/cache/geos"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestBoundaries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boundaries.geojson")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"type":"FeatureCollection","features":[]}`), 0o644))

	_, ts := newTestHub(t, Config{BoundariesFile: path})

	resp, err := http.Get(ts.URL + "/boundaries")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	resp2, err := http.Get(ts.URL + "/cache/boundaries")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var mt time.Time
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&mt))
	assert.False(t, mt.IsZero())
}
