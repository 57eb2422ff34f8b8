// Package domain contains core concepts of the marketplace messaging system.
// This file defines Message and related rules.
// Messages are immutable and validated before they reach storage.
package domain

import (
	"time"
)

// MaxBodyLength bounds a message body, counted in code points.
const MaxBodyLength = 4096

// Message represents an immutable chat entry inside a conversation.
// Seq starts at 1 and increases strictly with no reader-visible gap;
// it is assigned by the store, never by the caller.
type Message struct {
	Seq          uint64
	Conversation ConversationID
	Sender       UserID
	Body         string
	CreatedAt    time.Time
}
