package event

import (
	"market-chat/domain"
)

type DomainEvent interface {
	ConversationID() domain.ConversationID
}

// MessageAppended is published after a message has been durably persisted.
// It is the fan-out payload: persistence is the commit point, this event is
// the best-effort notification layered on top.
type MessageAppended struct {
	Message domain.Message
}

func (m MessageAppended) ConversationID() domain.ConversationID {
	return m.Message.Conversation
}
