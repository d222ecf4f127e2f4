package queue

import (
	"encoding/json"
	"time"

	"assessment-backend/internal/exportqueue"
)

// MessageVersion is the current nudge payload version.
const MessageVersion = 1

// Message wakes a remote worker. The export queue table stays the source of
// truth; a nudge only says there may be work for these exports.
type Message struct {
	ExportIDs  []string `json:"exportIds"`
	DocumentID string   `json:"documentId"`
	RequestID  string   `json:"requestId,omitempty"`
	EnqueuedAt string   `json:"enqueuedAt"`
	Version    int      `json:"version"`
}

// NewMessage builds a nudge for items that all belong to one document.
func NewMessage(items []exportqueue.Item, now time.Time) Message {
	msg := Message{
		ExportIDs:  make([]string, 0, len(items)),
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
	for _, it := range items {
		msg.ExportIDs = append(msg.ExportIDs, it.ID)
		msg.DocumentID = it.DocumentID
		if msg.RequestID == "" {
			msg.RequestID = it.RequestID
		}
	}
	return msg
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
