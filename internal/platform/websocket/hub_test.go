package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	sub := hub.subscribe("detection/a")
	other := hub.subscribe("detection/b")

	if err := hub.Publish(context.Background(), Event{Type: "detection.snapshot", Topic: "detection/a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-sub.send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got.Type != "detection.snapshot" || got.Topic != "detection/a" {
			t.Errorf("unexpected event %+v", got)
		}
	default:
		t.Fatal("expected the subscriber to receive the event")
	}
	select {
	case <-other.send:
		t.Fatal("other topic should not receive the event")
	default:
	}
}

func TestHub_FullBufferDropsEvents(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	sub := hub.subscribe("t")
	for i := 0; i < sendBuffer+5; i++ {
		if err := hub.Publish(context.Background(), Event{Topic: "t"}); err != nil {
			t.Fatal(err)
		}
	}
	if len(sub.send) != sendBuffer {
		t.Errorf("expected %d buffered events, got %d", sendBuffer, len(sub.send))
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	sub := hub.subscribe("t")
	if hub.TopicCount("t") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount("t"))
	}

	hub.unsubscribe(sub)
	hub.unsubscribe(sub)

	if hub.TopicCount("t") != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.TopicCount("t"))
	}
	if _, ok := <-sub.send; ok {
		t.Error("expected the send channel to be closed")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://app.test"}, "", true},
		{"no allow list", nil, "http://evil.test", true},
		{"listed", []string{"http://app.test"}, "http://app.test", true},
		{"wildcard", []string{"*"}, "http://any.test", true},
		{"not listed", []string{"http://app.test"}, "http://evil.test", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(req); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestServe_RejectsPlainRequest(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := hub.Serve(c, "t", nil); err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected the upgrade to fail for a non-websocket request")
	}
	if hub.TopicCount("t") != 0 {
		t.Error("failed upgrade should not subscribe")
	}
}

func TestServe_StreamsInitialAndPublished(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	e := echo.New()
	e.GET("/events", func(c echo.Context) error {
		return hub.Serve(c, "detection/x", &Event{Type: "hello", Topic: "detection/x"})
	})
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.Type != "hello" {
		t.Fatalf("expected the initial event first, got %q", first.Type)
	}

	hub.Publish(context.Background(), Event{Type: "detection.snapshot", Topic: "detection/x", Data: json.RawMessage(`{"progress":15}`)})
	var next Event
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read published: %v", err)
	}
	if next.Type != "detection.snapshot" || string(next.Data) != `{"progress":15}` {
		t.Errorf("unexpected event %+v", next)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("detection/x") != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("detection/x") != 0 {
		t.Error("expected the subscriber to be removed after the client left")
	}
}
