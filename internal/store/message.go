package store

import (
	"encoding/json"
	"strings"
)

// Sender identifies who produced a message. The reserved identity AISender is
// used for every message generated by the AI coordinator.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var AISender = Sender{ID: "ai", Name: "AI Assistant"}

// Body is the message payload: either plain chat text or a structured AI
// result carrying text plus an optional file tree. The distinction is kept
// explicit here instead of re-parsing strings at every call site; the string
// wire form is produced/consumed only by Encode and DecodeBody.
type Body struct {
	text       string
	fileTree   json.RawMessage
	structured bool
}

func PlainText(text string) Body {
	return Body{text: text}
}

func Structured(text string, fileTree json.RawMessage) Body {
	return Body{text: text, fileTree: fileTree, structured: true}
}

func (b Body) Text() string              { return b.text }
func (b Body) FileTree() json.RawMessage { return b.fileTree }
func (b Body) IsStructured() bool        { return b.structured }

// Contains reports whether the payload text contains term as a
// case-insensitive substring. This is the search semantics for the whole
// service.
func (b Body) Contains(term string) bool {
	return strings.Contains(strings.ToLower(b.text), strings.ToLower(term))
}

type structuredBody struct {
	Text     string          `json:"text"`
	FileTree json.RawMessage `json:"fileTree,omitempty"`
}

// Encode renders the wire form: plain text verbatim, structured payloads as a
// JSON object with a text field and an optional fileTree.
func (b Body) Encode() string {
	if !b.structured {
		return b.text
	}
	raw, err := json.Marshal(structuredBody{Text: b.text, FileTree: b.fileTree})
	if err != nil {
		return b.text
	}
	return string(raw)
}

// DecodeBody parses the wire form. A string is treated as structured only if
// it is a JSON object with a text field; anything else is plain text.
func DecodeBody(s string) Body {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return PlainText(s)
	}
	var sb structuredBody
	if err := json.Unmarshal([]byte(trimmed), &sb); err != nil || sb.Text == "" {
		return PlainText(s)
	}
	return Structured(sb.Text, sb.FileTree)
}

// Message is one chat event in a room. Timestamp is assigned by the relay at
// append time, RFC3339. Messages are never mutated after creation.
type Message struct {
	ID        string
	Sender    Sender
	Body      Body
	Timestamp string
}

type messageJSON struct {
	ID        string `json:"id,omitempty"`
	Sender    Sender `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:        m.ID,
		Sender:    m.Sender,
		Message:   m.Body.Encode(),
		Timestamp: m.Timestamp,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	m.ID = mj.ID
	m.Sender = mj.Sender
	m.Body = DecodeBody(mj.Message)
	m.Timestamp = mj.Timestamp
	return nil
}
