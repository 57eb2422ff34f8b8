package repositories

import (
	"fmt"

	"market-chat/domain"
)

// Badger key layout. Message keys embed the sequence number as a 19-digit
// zero-padded decimal so that lexicographic iteration order equals append
// order inside a conversation prefix.
//
//	convkey:{low}|{high}|{listing} -> conversation id (insert-if-absent)
//	conv:{id}                      -> conversationRecord (incl. tail seq)
//	msg:{id}:{seq}                 -> messageRecord
//	uconv:{user}:{id}              -> membership marker
//	user:{id}                      -> userRecord
//	idem:{id}:{sender}:{token}     -> seq produced by that dedup token
func pairKey(low, high domain.UserID, listingRef string) []byte {
	return fmt.Appendf(nil, "convkey:%s|%s|%s", low, high, listingRef)
}

func convKey(id domain.ConversationID) []byte {
	return fmt.Appendf(nil, "conv:%s", id)
}

func msgKey(id domain.ConversationID, seq uint64) []byte {
	return fmt.Appendf(nil, "msg:%s:%019d", id, seq)
}

func msgPrefix(id domain.ConversationID) []byte {
	return fmt.Appendf(nil, "msg:%s:", id)
}

func memberKey(user domain.UserID, id domain.ConversationID) []byte {
	return fmt.Appendf(nil, "uconv:%s:%s", user, id)
}

func memberPrefix(user domain.UserID) []byte {
	return fmt.Appendf(nil, "uconv:%s:", user)
}

func userKey(id domain.UserID) []byte {
	return fmt.Appendf(nil, "user:%s", id)
}

func idemKey(id domain.ConversationID, sender domain.UserID, token string) []byte {
	return fmt.Appendf(nil, "idem:%s:%s:%s", id, sender, token)
}
