package protocol

import "encoding/json"

// Server -> client events.
const (
	EventLoadMessages   = "load-messages"
	EventMoreMessages   = "more-messages-loaded"
	EventSearchResults  = "search-results"
	EventProjectMessage = "project-message"
	EventError          = "error"
)

// Client -> server events. EventProjectMessage flows both ways.
const (
	EventLoadMore = "load-more-messages"
	EventSearch   = "search-messages"
)

// Error event types.
const (
	ErrLoadMessages   = "LOAD_MESSAGES_ERROR"
	ErrLoadMore       = "LOAD_MORE_MESSAGES_ERROR"
	ErrSearch         = "SEARCH_MESSAGES_ERROR"
	ErrMessage        = "MESSAGE_HANDLING_ERROR"
	ErrUpdateFileTree = "UPDATE_FILE_TREE_ERROR"
	ErrValidation     = "VALIDATION_ERROR"
)

// Envelope is the wire format for every websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(frame, &env)
	return env, err
}

type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
