package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/tierone/installd/pkg/types"
)

// Events subscribes to the event stream. The first event is the current
// manager state. The channel is closed when ctx is done or the connection
// drops.
func (c *Client) Events(ctx context.Context) (<-chan types.Event, error) {
	url := c.base + "/api/ws"
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}

	events := make(chan types.Event, 64)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			var ev types.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
