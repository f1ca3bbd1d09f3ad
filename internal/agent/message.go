package agent

import "context"

// Message is an inbound chat message as delivered by the transport. The
// transport may redeliver the same message; the router debounce absorbs
// that.
type Message struct {
	EntityID  string `json:"entity_id"`
	RoomID    string `json:"room_id"`
	Text      string `json:"text"`
	Source    string `json:"source"`
	MessageID string `json:"message_id,omitempty"`
	// Action marks a named downstream raw operation on derived messages
	// built by the delegation protocol.
	Action string `json:"action,omitempty"`
}

// Result is the structured outcome of every exposed operation. Faults never
// escape as errors past an operation boundary; they land here.
type Result struct {
	Success bool           `json:"success"`
	Text    string         `json:"text"`
	Data    map[string]any `json:"data,omitempty"`
}

// Emit delivers a textual response back to the conversation.
type Emit func(text string)

// Handler is one exposed operation.
type Handler func(ctx context.Context, msg Message, emit Emit) Result

// Dispatcher routes an inbound message to at most one operation. The second
// return value reports whether the message matched anything.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message, emit Emit) (Result, bool)
}

// duplicateIgnored is the neutral short-circuit result of the dedup layer.
func duplicateIgnored() Result {
	return Result{Success: true, Data: map[string]any{"duplicate_ignored": true}}
}
