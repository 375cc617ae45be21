package websocket

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/config"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func envelope(callID string) types.Envelope {
	return types.Envelope{
		Type:      types.MessageTypeUpdate,
		CallID:    callID,
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage(`{"transcript":"hello"}`),
	}
}

func TestNewHub(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	if hub == nil {
		t.Fatal("expected hub to be created")
	}

	if hub.clients == nil {
		t.Error("expected clients map to be initialized")
	}

	if hub.broadcast == nil {
		t.Error("expected broadcast channel to be initialized")
	}

	if hub.register == nil {
		t.Error("expected register channel to be initialized")
	}

	if hub.unregister == nil {
		t.Error("expected unregister channel to be initialized")
	}
}

func TestHubClientCount(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	hub.mu.Lock()
	hub.clients[&Client{id: "test1"}] = true
	hub.clients[&Client{id: "test2"}] = true
	hub.mu.Unlock()

	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestHubBroadcastDoesNotBlock(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	// hub not running: the queue fills up and further envelopes are dropped
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.Broadcast(envelope("call-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("broadcast blocked unexpectedly")
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)
	go hub.Run()

	client := &Client{
		id:   "test-client",
		hub:  hub,
		send: make(chan []byte, 1),
	}

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after register, got %d", hub.ClientCount())
	}

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
}

func TestHubDeliversBySubscription(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)
	go hub.Run()

	all := &Client{id: "all", hub: hub, send: make(chan []byte, 10)}
	one := &Client{id: "one", callID: "call-1", hub: hub, send: make(chan []byte, 10)}
	two := &Client{id: "two", callID: "call-2", hub: hub, send: make(chan []byte, 10)}

	hub.register <- all
	hub.register <- one
	hub.register <- two
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(envelope("call-1"))
	time.Sleep(20 * time.Millisecond)

	tests := []struct {
		name   string
		client *Client
		want   int
	}{
		{"unfiltered client", all, 1},
		{"matching client", one, 1},
		{"other call", two, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.client.send); got != tt.want {
				t.Errorf("expected %d queued messages, got %d", tt.want, got)
			}
		})
	}

	msg := <-one.send
	var got types.Envelope
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if got.CallID != "call-1" || got.Type != types.MessageTypeUpdate {
		t.Errorf("unexpected envelope %+v", got)
	}
}

func TestHubBroadcastWithoutCallReachesEveryone(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)
	go hub.Run()

	client1 := &Client{id: "client1", callID: "call-1", hub: hub, send: make(chan []byte, 10)}
	client2 := &Client{id: "client2", callID: "call-2", hub: hub, send: make(chan []byte, 10)}

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	env := envelope("")
	env.Type = types.MessageTypeSessions
	hub.Broadcast(env)

	for _, c := range []*Client{client1, client2} {
		select {
		case msg := <-c.send:
			if !strings.Contains(string(msg), `"type":"sessions"`) {
				t.Errorf("%s got unexpected message %s", c.id, msg)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("%s did not receive message", c.id)
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)
	go hub.Run()

	slow := &Client{id: "slow", hub: hub, send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(envelope("call-1"))
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected slow client to be dropped, got %d clients", hub.ClientCount())
	}
}

func TestClientSubscribed(t *testing.T) {
	tests := []struct {
		name       string
		subscribed string
		callID     string
		want       bool
	}{
		{"all calls", "", "call-1", true},
		{"broadcast to all", "call-1", "", true},
		{"same call", "call-1", "call-1", true},
		{"other call", "call-1", "call-2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{callID: tt.subscribed}
			if got := c.Subscribed(tt.callID); got != tt.want {
				t.Errorf("Subscribed(%q) = %v, want %v", tt.callID, got, tt.want)
			}
		})
	}
}

func TestHandlerStreamsEnvelopes(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)
	go hub.Run()

	cfg := &config.Config{
		AllowedOrigins: []string{"http://localhost:3000"},
		PongWait:       time.Minute,
		PingPeriod:     54 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 512,
	}
	server := httptest.NewServer(NewHandler(hub, cfg, logger))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?callId=call-7"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(envelope("call-other"))
	hub.Broadcast(envelope("call-7"))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var got types.Envelope
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if got.CallID != "call-7" {
		t.Errorf("expected envelope for call-7, got %q", got.CallID)
	}
}

func TestHandlerRejectsUnknownOrigin(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)
	go hub.Run()

	cfg := &config.Config{AllowedOrigins: []string{"http://localhost:3000"}}
	server := httptest.NewServer(NewHandler(hub, cfg, logger))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Errorf("expected 403 response, got %v", resp)
	}
}
