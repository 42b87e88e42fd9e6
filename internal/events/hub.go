package events

import (
	"context"
	"encoding/json"

	"github.com/kiwari-pos/terminal/internal/ws"
)

// HubPublisher pushes events to the websocket room of the event's branch.
type HubPublisher struct {
	Hub *ws.Hub
}

func (p HubPublisher) Publish(_ context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.Hub.BroadcastToBranch(ev.BranchID, ws.Event{Type: ev.Type, Payload: raw})
	return nil
}
