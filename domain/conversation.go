// Package domain contains core concepts of the marketplace messaging system.
// This file defines Conversation entities and their invariants.
// No storage, network, or transport logic should be added here.
package domain

import (
	"time"
)

// UserID is the opaque identifier handed out by the identity collaborator.
// The messaging core only stores and compares it.
type UserID string

// ConversationID identifies a buyer/seller thread.
type ConversationID string

// Conversation is a durable thread between exactly two distinct participants,
// optionally scoped to a listing. The participant set is immutable once created.
type Conversation struct {
	ID ConversationID
	// Participants are stored normalized (lexicographically low/high) so that
	// the {a, b} pair is unordered: {"bob", "alice"} and {"alice", "bob"}
	// designate the same conversation.
	ParticipantLow  UserID
	ParticipantHigh UserID
	ListingRef      string
	CreatedAt       time.Time
}

// HasParticipant reports whether id belongs to the conversation's pair.
func (c Conversation) HasParticipant(id UserID) bool {
	return id == c.ParticipantLow || id == c.ParticipantHigh
}

// Other returns the participant facing id. The caller must already be a
// participant; a stranger gets the low side back, never a leak of both.
func (c Conversation) Other(id UserID) UserID {
	if id == c.ParticipantLow {
		return c.ParticipantHigh
	}
	return c.ParticipantLow
}

// NormalizePair orders an unordered participant pair into its stored form.
func NormalizePair(a, b UserID) (low, high UserID) {
	if b < a {
		return b, a
	}
	return a, b
}

// ConversationSummary is the per-user inbox line: who the thread is with,
// what was said last and when.
type ConversationSummary struct {
	ID               ConversationID
	OtherParticipant UserID
	ListingRef       string
	LastSender       UserID
	LastPreview      string
	LastActivity     time.Time
}
