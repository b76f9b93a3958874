package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market_pulse_backend/models"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, r.URL.Query().Get("owner"))
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestSnapshotReachesTopicSubscribersOnly(t *testing.T) {
	hub, srv := startHub(t)
	cryptoConn := dial(t, srv, "topics=crypto")
	equityConn := dial(t, srv, "topics=equity")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishSnapshot(models.Snapshot{
		AssetClass: models.AssetClassCrypto,
		Assets: []models.CachedAsset{
			{ID: "bitcoin", Price: decimal.NewFromInt(1)},
			{ID: "ethereum", Price: decimal.NewFromInt(1)},
			{ID: "solana", Price: decimal.NewFromInt(1)},
		},
		UpdatedAt: time.Now(),
	}, 2)

	msg := readMessage(t, cryptoConn)
	assert.Equal(t, EventCryptoUpdate, msg.Type)
	assert.Equal(t, "crypto", msg.Topic)
	data := msg.Data.(map[string]interface{})
	assert.Len(t, data["assets"], 2)

	expectSilence(t, equityConn)
}

func TestOwnerEventsArePrivate(t *testing.T) {
	hub, srv := startHub(t)
	alice := dial(t, srv, "owner=alice")
	bob := dial(t, srv, "owner=bob")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishToOwner("alice", EventNotification, map[string]string{"title": "hi"})

	msg := readMessage(t, alice)
	assert.Equal(t, EventNotification, msg.Type)
	assert.Equal(t, "user:alice", msg.Topic)
	expectSilence(t, bob)
}

func TestSubscribeCommand(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "subscribe", "topics": []string{"equity", "user:someone"}}))

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return c.subscribed("equity") && !c.subscribed("user:someone")
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	hub.PublishSnapshot(models.Snapshot{AssetClass: models.AssetClassEquity}, 10)
	msg := readMessage(t, conn)
	assert.Equal(t, EventEquityUpdate, msg.Type)
}

func TestPublishNeverBlocksWithoutRunLoop(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.Publish("crypto", EventCryptoUpdate, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub(10, zap.NewNop())
	c := &client{id: "slow", send: make(chan []byte, 1), topics: map[string]bool{"crypto": true}}
	hub.clients[c] = true

	hub.deliver(outbound{topic: "crypto", data: []byte("1")})
	hub.deliver(outbound{topic: "crypto", data: []byte("2")})

	assert.Equal(t, 0, hub.ClientCount())
	_, open := <-c.send
	assert.True(t, open, "buffered message still readable")
	_, open = <-c.send
	assert.False(t, open)
}

func TestIsMarketTopic(t *testing.T) {
	assert.True(t, isMarketTopic("crypto"))
	assert.True(t, isMarketTopic("equity"))
	assert.False(t, isMarketTopic("user:bob"))
	assert.False(t, isMarketTopic("CRYPTO"))
}
