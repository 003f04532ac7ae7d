package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/aggregator/pkg/reading"
)

// StreamMessage is one message from the aggregator's /ws/stream endpoint.
type StreamMessage struct {
	Event       string
	Clock       uint64
	GeneratedAt string
	Readings    []reading.Reading
}

type envelope struct {
	Event string `json:"event"`
	Data  struct {
		Clock       uint64            `json:"clock"`
		GeneratedAt string            `json:"generated_at"`
		Readings    []json.RawMessage `json:"readings"`
	} `json:"data"`
}

// DecodeStreamMessage parses one stream frame.
func DecodeStreamMessage(raw []byte) (StreamMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return StreamMessage{}, fmt.Errorf("client: decode stream message: %w", err)
	}
	msg := StreamMessage{
		Event:       env.Event,
		Clock:       env.Data.Clock,
		GeneratedAt: env.Data.GeneratedAt,
		Readings:    make([]reading.Reading, 0, len(env.Data.Readings)),
	}
	for _, rr := range env.Data.Readings {
		r, err := reading.Unmarshal(rr)
		if err != nil {
			return StreamMessage{}, fmt.Errorf("client: decode stream reading: %w", err)
		}
		msg.Readings = append(msg.Readings, r)
	}
	return msg, nil
}

// Watch connects to the WebSocket stream at wsURL and calls fn for every
// message until ctx is cancelled, the server closes the stream, or fn
// returns an error. A normal close or cancellation returns nil.
func Watch(ctx context.Context, wsURL string, fn func(StreamMessage) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("client: read stream: %w", err)
		}
		msg, err := DecodeStreamMessage(raw)
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
