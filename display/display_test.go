package display

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liamcoop/recalc/recalc"
)

func startHub(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, sessionID)
	}))
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return hub.Subscribers(sessionID) == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubPushesResultsInOrder(t *testing.T) {
	hub := NewHub()
	conn := startHub(t, hub, "s1")

	passes := []string{"p1", "p2", "p3"}
	for _, id := range passes {
		hub.Refresh(context.Background(), &recalc.Result{PassID: id, SessionID: "s1", Refreshed: []string{"sdlt_amount"}})
	}
	// another session's pass is not delivered
	hub.Refresh(context.Background(), &recalc.Result{PassID: "other", SessionID: "s2"})

	for _, want := range passes {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid message %s: %v", data, err)
		}
		if msg.Type != "recalculation" || msg.Result.PassID != want {
			t.Fatalf("got %s/%s, want recalculation/%s", msg.Type, msg.Result.PassID, want)
		}
		if len(msg.Result.Refreshed) != 1 || msg.Result.Refreshed[0] != "sdlt_amount" {
			t.Errorf("refreshed = %v", msg.Result.Refreshed)
		}
	}
}

func TestHubKeepalive(t *testing.T) {
	hub := NewHub(WithKeepalive(30*time.Millisecond, 150*time.Millisecond))
	conn := startHub(t, hub, "s1")

	pings := make(chan struct{}, 16)
	conn.SetPingHandler(func(data string) error {
		pings <- struct{}{}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// answered pings keep the connection past the pong deadline
	time.Sleep(400 * time.Millisecond)
	if len(pings) < 2 {
		t.Fatalf("got %d pings, want at least 2", len(pings))
	}
	if hub.Subscribers("s1") != 1 {
		t.Fatal("connection dropped although pongs were sent")
	}
}

func TestHubRemovesClosedSubscriber(t *testing.T) {
	hub := NewHub()
	conn := startHub(t, hub, "s1")

	conn.Close()
	waitFor(t, func() bool { return hub.Subscribers("s1") == 0 })
}

func TestHubDisconnect(t *testing.T) {
	hub := NewHub()
	conn := startHub(t, hub, "s1")

	hub.Disconnect("s1")
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read error = %v, want a normal close", err)
	}
	waitFor(t, func() bool { return hub.Subscribers("s1") == 0 })
}

func TestMulti(t *testing.T) {
	var order []string
	m := Multi{
		recalc.DisplayFunc(func(ctx context.Context, r *recalc.Result) { order = append(order, "a:"+r.PassID) }),
		LogDisplay{},
		recalc.DisplayFunc(func(ctx context.Context, r *recalc.Result) { order = append(order, "b:"+r.PassID) }),
	}

	m.Refresh(context.Background(), &recalc.Result{PassID: "p1", Failed: []recalc.Failure{{Computation: "c", Reason: "boom"}}})
	if len(order) != 2 || order[0] != "a:p1" || order[1] != "b:p1" {
		t.Errorf("order = %v", order)
	}
}
