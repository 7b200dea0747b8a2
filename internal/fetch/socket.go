package fetch

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// MessageHandler processes one inbound socket message. An error from the
// handler terminates the subscription: the push path has no "next item" to
// continue to, its consumer is waiting on a result.
type MessageHandler func(ctx context.Context, msg []byte) error

// Listen opens a persistent socket to the given URL and invokes handler for
// each inbound message, one at a time. It returns when ctx is cancelled
// (consumer disconnected), the upstream socket closes or errors, or the
// handler fails. Socket errors are terminal; no reconnect is attempted.
func Listen(ctx context.Context, socketURL string, handler MessageHandler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return fmt.Errorf("dial socket %s: %w", socketURL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the consumer goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read socket message: %w", err)
		}
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
}
