package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierone/installd/pkg/types"
)

func TestClient_InitialStateComesFirst(t *testing.T) {
	c := &client{send: make(chan []byte, sendQueue+1)}

	require.True(t, c.deliver([]byte("early")))
	c.start([]byte("initial"))
	require.True(t, c.deliver([]byte("late")))

	assert.Equal(t, "initial", string(<-c.send))
	assert.Equal(t, "early", string(<-c.send))
	assert.Equal(t, "late", string(<-c.send))
}

func TestClient_PendingOverflowDropsClient(t *testing.T) {
	c := &client{send: make(chan []byte, sendQueue+1)}

	for i := 0; i < sendQueue; i++ {
		require.True(t, c.deliver([]byte("event")))
	}
	assert.False(t, c.deliver([]byte("event")))
}

func TestClient_DeliverAfterClose(t *testing.T) {
	c := &client{send: make(chan []byte, sendQueue+1)}
	c.start([]byte("initial"))
	c.close()
	c.close()

	assert.True(t, c.deliver([]byte("event")))
	c.start([]byte("again"))
}

func TestEvents_ReadingClientStaysConnected(t *testing.T) {
	saved := pongWait
	pongWait = 200 * time.Millisecond
	t.Cleanup(func() { pongWait = saved })

	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readEvent(t, conn)
	require.Equal(t, types.EventManager, first.Type)
	require.NoError(t, conn.SetReadDeadline(time.Time{}))

	events := make(chan types.Event, 64)
	errs := make(chan error, 1)
	go func() {
		for {
			var ev types.Event
			if err := conn.ReadJSON(&ev); err != nil {
				errs <- err
				return
			}
			events <- ev
		}
	}()

	select {
	case err := <-errs:
		t.Fatalf("client disconnected while idle: %v", err)
	case <-time.After(5 * pongWait):
	}

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/manager/probe", nil).StatusCode)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == types.EventPhase {
				return
			}
		case err := <-errs:
			t.Fatalf("client disconnected: %v", err)
		case <-deadline:
			t.Fatal("no phase event after idle period")
		}
	}
}
