package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// newSocketServer serves a websocket endpoint that writes the given
// messages and then closes normally.
func newSocketServer(t *testing.T, messages []string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// Give the client a moment to read the close frame.
		time.Sleep(50 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListen_DeliversMessagesInOrder(t *testing.T) {
	url := newSocketServer(t, []string{"one", "two", "three"})

	var got []string
	err := Listen(context.Background(), url, func(_ context.Context, msg []byte) error {
		got = append(got, string(msg))
		return nil
	})
	if err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Errorf("messages = %v", got)
	}
}

func TestListen_HandlerErrorIsTerminal(t *testing.T) {
	url := newSocketServer(t, []string{"bad", "never-seen"})

	boom := errors.New("no usable structure")
	calls := 0
	err := Listen(context.Background(), url, func(_ context.Context, msg []byte) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Errorf("handler called %d times after terminal error", calls)
	}
}

func TestListen_ConsumerDisconnect(t *testing.T) {
	// Server that keeps the socket open without sending anything.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Block until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := Listen(ctx, url, func(_ context.Context, msg []byte) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestListen_DialFailure(t *testing.T) {
	err := Listen(context.Background(), "ws://127.0.0.1:1/feed", func(_ context.Context, msg []byte) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected dial error")
	}
}
