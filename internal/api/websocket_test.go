package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/infrastructure/config"
)

func testHub() *Hub {
	return NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())
}

func subscribedClient(hub *Hub, modules, channels []string) *WSClient {
	c := newWSClient(hub, nil, nil)
	for _, m := range modules {
		c.modules[m] = struct{}{}
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	return c
}

func receive(t *testing.T, c *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return WSMessage{}
	}
}

func TestHub_BroadcastModule(t *testing.T) {
	hub := testHub()
	watcher := subscribedClient(hub, []string{"mod-1"}, []string{"pin.output"})
	otherModule := subscribedClient(hub, []string{"mod-2"}, []string{"pin.output"})
	otherChannel := subscribedClient(hub, []string{"mod-1"}, []string{"module.changed"})
	for _, c := range []*WSClient{watcher, otherModule, otherChannel} {
		hub.Register(c)
	}

	hub.BroadcastModule("mod-1", "pin.output", map[string]any{"pin_id": "mod-1-pin-1", "output": "on"})

	msg := receive(t, watcher)
	if msg.Type != WSTypeEvent || msg.EventType != "pin.output" || msg.ModuleID != "mod-1" {
		t.Errorf("message = %+v", msg)
	}
	for _, c := range []*WSClient{otherModule, otherChannel} {
		select {
		case <-c.send:
			t.Error("client outside the subscription received the event")
		default:
		}
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := newWSClient(hub, nil, nil)
	hub.Register(c)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	hub.Register(newWSClient(hub, nil, nil))
	cancel()
	<-done
	if hub.ClientCount() != 0 {
		t.Errorf("after Run returned count = %d, want 0", hub.ClientCount())
	}
}

func TestClient_SubscribeChecksMembership(t *testing.T) {
	hub := testHub()
	verify := func(_ context.Context, moduleID string) error {
		if moduleID != "mod-1" {
			return auth.ErrNotAMember
		}
		return nil
	}
	c := newWSClient(hub, nil, verify)

	c.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["pin.output"],"modules":["mod-1","mod-2"]}}`))
	if msg := receive(t, c); msg.Type != WSTypeError || msg.ID != "1" {
		t.Errorf("mixed subscribe reply = %+v, want error", msg)
	}
	if c.isSubscribed("mod-1", "pin.output") {
		t.Error("denied subscribe partially applied")
	}

	c.handleMessage([]byte(`{"type":"subscribe","id":"2","payload":{"channels":["pin.output"],"modules":["mod-1"]}}`))
	if msg := receive(t, c); msg.Type != WSTypeResponse {
		t.Errorf("subscribe reply = %+v", msg)
	}
	if !c.isSubscribed("mod-1", "pin.output") {
		t.Error("subscription not applied")
	}

	c.handleMessage([]byte(`{"type":"unsubscribe","id":"3","payload":{"modules":["mod-1"]}}`))
	receive(t, c)
	if c.isSubscribed("mod-1", "pin.output") {
		t.Error("unsubscribe not applied")
	}
}

func TestClient_Messages(t *testing.T) {
	c := newWSClient(testHub(), nil, nil)

	c.handleMessage([]byte(`{"type":"ping","id":"p1"}`))
	if msg := receive(t, c); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}
	c.handleMessage([]byte(`not json`))
	if msg := receive(t, c); msg.Type != WSTypeError {
		t.Errorf("invalid JSON reply = %+v", msg)
	}
	c.handleMessage([]byte(`{"type":"dance","id":"d1"}`))
	if msg := receive(t, c); msg.Type != WSTypeError || msg.ID != "d1" {
		t.Errorf("unknown type reply = %+v", msg)
	}
}

func TestWebSocket_EndToEnd(t *testing.T) {
	srv, svc := testServer(t)
	svc.members = map[string]bool{"mod-1": true}
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	// No ticket.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without ticket succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without ticket response = %v", resp)
	}
	resp.Body.Close()

	srv.tickets.issue("tkt", auth.Credentials{Token: "token-alice"}, time.Now().Add(time.Minute))
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"?ticket=tkt", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	sub := `{"type":"subscribe","id":"s1","payload":{"channels":["pin.output"],"modules":["mod-1"]}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var reply WSMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read subscribe reply: %v", err)
	}
	if reply.Type != WSTypeResponse {
		t.Fatalf("subscribe reply = %+v", reply)
	}
	if got := svc.last(); got.op != "GetModule" || got.creds.Token != "token-alice" {
		t.Errorf("membership check = %+v", got)
	}

	srv.Hub().BroadcastModule("mod-1", "pin.output", map[string]string{"pin_id": "mod-1-pin-1", "output": "on"})

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.ModuleID != "mod-1" {
		t.Errorf("event = %+v", event)
	}

	// The ticket is single-use.
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL+"?ticket=tkt", nil); err == nil {
		t.Error("ticket reused")
	} else if resp != nil {
		resp.Body.Close()
	}
}
