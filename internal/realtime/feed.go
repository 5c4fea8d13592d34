package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// FeedConn is one open subscription to a topic's change events.
type FeedConn interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Feed opens connections to the change event source.
type Feed interface {
	Subscribe(ctx context.Context, topic Topic) (FeedConn, error)
}

type subscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// WebsocketFeed speaks the hub's subscribe protocol over the raw-websocket
// transport of the server's realtime endpoint.
type WebsocketFeed struct {
	URL     string
	Session string
	Dialer  *websocket.Dialer
}

func (f *WebsocketFeed) Subscribe(ctx context.Context, topic Topic) (FeedConn, error) {
	dialer := f.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	header := http.Header{}
	if f.Session != "" {
		header.Set("Authorization", "Bearer "+f.Session)
	}
	conn, _, err := dialer.DialContext(ctx, f.URL, header)
	if err != nil {
		return nil, err
	}
	msg, _ := json.Marshal(subscribeMessage{Action: "subscribe", Topic: string(topic)})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	wc := &websocketConn{conn: conn, topic: topic, events: make(chan ChangeEvent, 64)}
	go wc.readLoop()
	return wc, nil
}

type websocketConn struct {
	conn   *websocket.Conn
	topic  Topic
	events chan ChangeEvent
}

func (c *websocketConn) Events() <-chan ChangeEvent { return c.events }

func (c *websocketConn) Close() error {
	msg, _ := json.Marshal(subscribeMessage{Action: "unsubscribe", Topic: string(c.topic)})
	_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	return c.conn.Close()
}

func (c *websocketConn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("realtime feed: bad envelope: %v", err)
			continue
		}
		ev, err := env.ChangeEvent()
		if err != nil {
			log.Printf("realtime feed: bad payload for %s: %v", env.Table, err)
			continue
		}
		c.events <- ev
	}
}
