// Package chat carries the commands a transport hands to the messaging core.
// Commands are plain intent carriers; validation happens in the service layer.
package chat

import (
	"market-chat/domain"
)

// SendMessageCommand is the intent of delivering Body from Sender to Receiver,
// optionally scoped to a listing. DedupToken, when non-empty, makes a retried
// send idempotent: replaying the same token yields the originally persisted
// message instead of a duplicate.
type SendMessageCommand struct {
	Sender     domain.UserID
	Receiver   domain.UserID
	Body       string
	ListingRef string
	DedupToken string
}

// StartConversationCommand opens (or finds) the thread between Initiator and
// Participant without sending anything yet.
type StartConversationCommand struct {
	Initiator   domain.UserID
	Participant domain.UserID
	ListingRef  string
}

// HistoryCommand pages through a conversation. AfterSeq is an exclusive lower
// bound, zero meaning "from the beginning". Limit of zero takes the server
// default.
type HistoryCommand struct {
	Requester    domain.UserID
	Conversation domain.ConversationID
	AfterSeq     uint64
	Limit        int
}
