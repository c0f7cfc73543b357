// internal/game/events.go
package game

// EventType enumerates every outbound event the coordinator emits. The type
// strings are the wire-level compatibility surface; payload shapes live in
// the Payload map.
type EventType string

const (
	EventRoomUpdated  EventType = "room:updated"
	EventPlayerJoined EventType = "room:playerJoined"
	EventPlayerLeft   EventType = "room:playerLeft"
	EventStateChanged EventType = "game:stateChanged"
	EventCountdown    EventType = "game:countdown"
	EventRoundStart   EventType = "game:roundStart"
	EventRoundEnd     EventType = "game:roundEnd"
	EventGameFinished EventType = "game:finished"
	EventError        EventType = "error"
)

// Event is one outbound message. Broadcast events go to every connection in
// the room; error events go to the originating participant only.
type Event struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ErrorEvent builds the actor-directed rejection message.
func ErrorEvent(msg string) Event {
	return Event{
		Type:    EventError,
		Payload: map[string]interface{}{"message": msg},
	}
}
