package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaster/liveasr/internal/config"
	"github.com/livecaster/liveasr/internal/session"
	"github.com/livecaster/liveasr/internal/translate"
	"github.com/livecaster/liveasr/pkg/transcriber"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	settings := config.FromEnv()
	registry := session.NewRegistry(session.Deps{
		Transcriber: &transcriber.Mock{},
		Translators: translate.NewRegistry(),
		Tuning:      session.NewTuningStore(t.TempDir()),
		Settings:    settings,
	})
	srv := httptest.NewServer(New(registry, settings).Router())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// TestControllerHandshake verifies session_init arrives immediately after
// accept with the default settings.
func TestControllerHandshake(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "/ws/liveasr/control/stream-1")

	msg := readJSON(t, conn)
	assert.Equal(t, "session_init", msg["type"])

	settings, ok := msg["settings"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, config.DefaultSilenceThresholdSec, settings["silence_threshold"])
	assert.Equal(t, "deepl", settings["translation_engine"])
}

// TestSecondControllerClosed verifies the second controller socket is
// closed with a policy violation while the first stays attached.
func TestSecondControllerClosed(t *testing.T) {
	srv := newTestServer(t)
	first := dial(t, srv, "/ws/liveasr/control/stream-1")
	readJSON(t, first)

	second := dial(t, srv, "/ws/liveasr/control/stream-1")
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close frame, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

// TestMalformedControlClosed verifies a bad JSON frame closes the
// controller with a policy violation.
func TestMalformedControlClosed(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "/ws/liveasr/control/stream-1")
	readJSON(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close frame, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

// TestViewerHydration verifies a fresh viewer receives the empty-languages
// config and a later config update flows through live.
func TestViewerHydration(t *testing.T) {
	srv := newTestServer(t)
	viewer := dial(t, srv, "/ws/liveasr/watch/stream-1")

	msg := readJSON(t, viewer)
	assert.Equal(t, "config", msg["type"])
	assert.Equal(t, []interface{}{}, msg["languages"])

	ctrl := dial(t, srv, "/ws/liveasr/control/stream-1")
	readJSON(t, ctrl)
	require.NoError(t, ctrl.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"config","languages":["en"],"silence_threshold":0.8,"translation_engine":"deepl"}`)))

	msg = readJSON(t, viewer)
	assert.Equal(t, "config", msg["type"])
	assert.Equal(t, []interface{}{"en"}, msg["languages"])
}

// TestViewerPingsIgnored verifies inbound viewer frames are discarded and
// the socket stays subscribed.
func TestViewerPingsIgnored(t *testing.T) {
	srv := newTestServer(t)
	viewer := dial(t, srv, "/ws/liveasr/watch/stream-1")
	readJSON(t, viewer)

	require.NoError(t, viewer.WriteMessage(websocket.TextMessage, []byte("ping")))

	ctrl := dial(t, srv, "/ws/liveasr/control/stream-1")
	readJSON(t, ctrl)
	require.NoError(t, ctrl.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"config","languages":["ja"]}`)))

	msg := readJSON(t, viewer)
	assert.Equal(t, "config", msg["type"])
	assert.Equal(t, []interface{}{"ja"}, msg["languages"])
}
