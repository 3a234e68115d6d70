package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oddslab/marketcore/pkg/types"
)

func TestBroadcastReachesSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub(zaptest.NewLogger(t))
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a beat to register the connection.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast([]types.Event{
		{Type: types.EventFill, TsMs: 7},
		{Type: types.EventAutoFill, TsMs: 7},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var events []types.Event
	require.NoError(t, json.Unmarshal(payload, &events))
	require.Len(t, events, 2)
	assert.Equal(t, types.EventFill, events[0].Type)
	assert.Equal(t, types.EventAutoFill, events[1].Type)
}

func TestBroadcastWithoutSubscribersIsHarmless(t *testing.T) {
	t.Parallel()

	hub := NewHub(zaptest.NewLogger(t))
	defer hub.Close()
	hub.Broadcast([]types.Event{{Type: types.EventFill}})
	hub.Broadcast(nil)
}
