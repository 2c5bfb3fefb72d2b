package detection

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/platform/websocket"
)

// EventSnapshot is the type of every workspace event.
const EventSnapshot = "detection.snapshot"

// Publisher receives workspace changes. *websocket.Hub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, e websocket.Event) error
}

// Streamer serves a topic over an upgraded connection.
type Streamer interface {
	Serve(c echo.Context, topic string, initial *websocket.Event) error
}

// Topic is the event topic of one workspace.
func Topic(id uuid.UUID) string {
	return "detection/" + id.String()
}

// SetPublisher streams a snapshot, without the image preview, after every
// state change and progress tick.
func (o *Orchestrator) SetPublisher(p Publisher) { o.events = p }

func (o *Orchestrator) event(ws *Workspace) websocket.Event {
	data, _ := json.Marshal(ws.snapshot(false))
	return websocket.Event{
		Type:      EventSnapshot,
		Topic:     Topic(ws.ID),
		Timestamp: o.now(),
		Data:      data,
	}
}

func (o *Orchestrator) publish(ws *Workspace) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(context.Background(), o.event(ws)); err != nil {
		o.logger.Debug().Err(err).Str("workspace_id", ws.ID.String()).Msg("publish workspace event")
	}
}
