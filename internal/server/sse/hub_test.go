package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"face-attendance-go/internal/attendance"

	"github.com/gin-gonic/gin"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, c Client) (Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-c:
		return msg, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func TestHubBroadcast(t *testing.T) {
	h, _ := startHub(t)
	a, b := make(Client, 1), make(Client, 1)
	h.Register(a)
	h.Register(b)

	h.Broadcast(Message{Event: "ping", Data: []byte("1")})

	for _, c := range []Client{a, b} {
		msg, ok := receive(t, c)
		if !ok || msg.Event != "ping" || string(msg.Data) != "1" {
			t.Errorf("got %+v ok=%v", msg, ok)
		}
	}
	if n := h.ClientCount(); n != 2 {
		t.Errorf("ClientCount = %d, want 2", n)
	}
}

func TestHubDropsFullClient(t *testing.T) {
	h, _ := startHub(t)
	slow := make(Client)
	h.Register(slow)

	h.Broadcast(Message{Event: "x"})

	if _, ok := receive(t, slow); ok {
		t.Error("full client should be closed")
	}
}

func TestHubNotify(t *testing.T) {
	h, _ := startHub(t)
	c := make(Client, 1)
	h.Register(c)

	ev := attendance.Event{Type: attendance.EventAttendanceRecorded, Name: "bob", Confidence: 0.9}
	if err := h.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	msg, _ := receive(t, c)
	if msg.Event != attendance.EventAttendanceRecorded {
		t.Errorf("event = %q", msg.Event)
	}
	var got attendance.Event
	if err := json.Unmarshal(msg.Data, &got); err != nil || got.Name != "bob" {
		t.Errorf("data = %s err=%v", msg.Data, err)
	}
}

func TestHubStopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := make(Client, 1)
	h.Register(c)
	cancel()

	if _, ok := receive(t, c); ok {
		t.Error("client should be closed on stop")
	}
	<-h.done
	if h.Register(make(Client)) {
		t.Error("Register after stop should fail")
	}
}

func TestHandlerStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := startHub(t)

	r := gin.New()
	r.GET("/events", h.Handler)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	h.Broadcast(Message{Event: "attendance.recorded", Data: []byte(`{"name":"bob"}`)})

	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(buf[:n])
	if !strings.Contains(body, "event:attendance.recorded") {
		t.Errorf("body = %q", body)
	}
}
