package kds

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/utils"
)

func newTestServer(t *testing.T, hub *KDSHub) *httptest.Server {
	t.Helper()
	utils.InitLogger()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var requested []string
		if q := r.URL.Query().Get("topics"); q != "" {
			requested = strings.Split(q, ",")
		}
		hub.Serve(conn, "STAFF", ParseTopics(requested))
	}))
	t.Cleanup(srv.Close)
	return srv
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
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestParseTopics(t *testing.T) {
	assert.Len(t, ParseTopics(nil), 3)
	assert.Len(t, ParseTopics([]string{"bogus"}), 3)

	topics := ParseTopics([]string{TopicRefresh, "bogus"})
	assert.Equal(t, map[string]bool{TopicRefresh: true}, topics)
}

func TestHub_DeliversSnapshots(t *testing.T) {
	hub := NewHub(4)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishNewOrder(models.OrderSnapshot{OrderCode: "ORD-1A2B3C4D", Status: models.OrderStatusNew})
	msg := readMessage(t, conn)
	assert.Equal(t, TopicNewOrder, msg.Event)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ORD-1A2B3C4D", data["orderCode"])

	hub.PublishRefreshHint()
	assert.Equal(t, TopicRefresh, readMessage(t, conn).Event)
}

func TestHub_FiltersByTopic(t *testing.T) {
	hub := NewHub(4)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "topics="+TopicStatusChange)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishNewOrder(models.OrderSnapshot{OrderCode: "ORD-SKIPPED0"})
	hub.PublishStatusChanged(models.OrderSnapshot{OrderCode: "ORD-00000001", Status: models.OrderStatusPreparing})

	msg := readMessage(t, conn)
	assert.Equal(t, TopicStatusChange, msg.Event)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(4)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastDoesNotBlockOnSlowClient(t *testing.T) {
	utils.InitLogger()
	hub := NewHub(1)
	// registered but nobody drains the buffer
	slow := &client{role: "STAFF", topics: ParseTopics(nil), send: make(chan []byte, 1)}
	hub.register(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.PublishRefreshHint()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
	assert.Len(t, slow.send, 1)

	hub.unregister(slow)
	assert.Zero(t, hub.ClientCount())
	// second close must not panic
	slow.close()
}
