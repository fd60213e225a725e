package docserver

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lox/holdemtable/internal/store"
)

// Message is the envelope for every frame in either direction. Replies carry
// the RequestID of the request they answer.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// MessageType names a frame.
type MessageType string

const (
	// Client to server
	MessageTypeRead                MessageType = "read"
	MessageTypeQuery               MessageType = "query"
	MessageTypeCommit              MessageType = "commit"
	MessageTypeSubscribe           MessageType = "subscribe"
	MessageTypeSubscribeCollection MessageType = "subscribe_collection"
	MessageTypeUnsubscribe         MessageType = "unsubscribe"

	// Server to client
	MessageTypeHello      MessageType = "hello"
	MessageTypeResult     MessageType = "result"
	MessageTypeError      MessageType = "error"
	MessageTypeSnapshot   MessageType = "snapshot"
	MessageTypeCollection MessageType = "collection"
)

func (mt MessageType) String() string {
	return string(mt)
}

type ReadData struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

type QueryData struct {
	Path string `json:"path"`
}

type CommitData struct {
	Ops []store.Op `json:"ops"`
}

type SubscribeData struct {
	SubID string `json:"subId"`
	Path  string `json:"path"`
	ID    string `json:"id,omitempty"`
}

type UnsubscribeData struct {
	SubID string `json:"subId"`
}

type HelloData struct {
	UID  string `json:"uid,omitempty"`
	Name string `json:"name,omitempty"`
}

type ResultData struct {
	Doc  store.Document            `json:"doc,omitempty"`
	Docs map[string]store.Document `json:"docs,omitempty"`
}

type SnapshotData struct {
	SubID    string         `json:"subId"`
	Snapshot store.Snapshot `json:"snapshot"`
}

type CollectionData struct {
	SubID string                    `json:"subId"`
	Docs  map[string]store.Document `json:"docs"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ErrorData.
const (
	CodeNotFound           = "not_found"
	CodePreconditionFailed = "precondition_failed"
	CodeInvalidMessage     = "invalid_message"
	CodeInternal           = "internal"
)

// ErrorCode classifies a store error for the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, store.ErrPreconditionFailed):
		return CodePreconditionFailed
	default:
		return CodeInternal
	}
}
