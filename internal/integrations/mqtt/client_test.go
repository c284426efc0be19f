package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/attendance"
)

type published struct {
	topic   string
	retain  bool
	payload []byte
}

func newTestClient(enabled bool) (*Client, *[]published) {
	c := NewClient(config.MQTTConfig{Enabled: enabled, Topic: "attendance/events", Retain: true})
	var out []published
	c.publish = func(topic string, retain bool, payload []byte) error {
		out = append(out, published{topic, retain, payload})
		return nil
	}
	return c, &out
}

func TestNotify(t *testing.T) {
	c, out := newTestClient(true)
	ev := attendance.Event{
		Type:       attendance.EventAttendanceRecorded,
		RequestID:  "req-1",
		Source:     attendance.SourceImage,
		Name:       "alice",
		Confidence: 0.82,
		Time:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := c.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(*out) != 1 {
		t.Fatalf("published %d messages, want 1", len(*out))
	}
	msg := (*out)[0]
	if msg.topic != "attendance/events/attendance/recorded" {
		t.Errorf("topic = %q", msg.topic)
	}
	if !msg.retain {
		t.Error("retain flag not forwarded")
	}
	var got attendance.Event
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Name != "alice" || got.RequestID != "req-1" {
		t.Errorf("payload = %+v", got)
	}
}

func TestNotifyDisabled(t *testing.T) {
	c, out := newTestClient(false)
	if err := c.Notify(context.Background(), attendance.Event{Type: attendance.EventRecognitionCompleted}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(*out) != 0 {
		t.Errorf("disabled client published %d messages", len(*out))
	}
}

func TestBrokerPublishWithoutConnection(t *testing.T) {
	c := NewClient(config.MQTTConfig{Enabled: true, Topic: "t"})
	err := c.Notify(context.Background(), attendance.Event{Type: "x"})
	if err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestDispatch(t *testing.T) {
	c, _ := newTestClient(true)
	var got []string
	c.RegisterHandler(CommandHandlerFunc(func(_ context.Context, cmd Command) error {
		got = append(got, cmd.Action)
		return nil
	}))

	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"valid", `{"action":"reload_gallery"}`, 1},
		{"missing action", `{}`, 0},
		{"bad json", `not json`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			c.dispatch(c.CommandTopic(), []byte(tt.payload))
			if len(got) != tt.want {
				t.Errorf("handler calls = %d, want %d", len(got), tt.want)
			}
		})
	}
	if c.CommandTopic() != "attendance/events/command" {
		t.Errorf("CommandTopic = %q", c.CommandTopic())
	}
}
