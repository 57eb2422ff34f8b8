//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"market-chat/domain"
	apperrors "market-chat/errors"
)

type IConversationRepository interface {
	GetOrCreate(a, b domain.UserID, listingRef string) (domain.Conversation, error)
	Get(id domain.ConversationID) (domain.Conversation, error)
	ListForUser(user domain.UserID) ([]domain.ConversationSummary, error)
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

// conversationRecord is the on-disk shape of a conversation. The tail fields
// (LastSeq, LastMessageAt) live here so an append is one conditional
// read-bump-insert on a single record, never a separate counter.
type conversationRecord struct {
	ID            string `cbor:"id"`
	Low           string `cbor:"low"`
	High          string `cbor:"high"`
	ListingRef    string `cbor:"listing,omitempty"`
	CreatedAt     int64  `cbor:"created_at"`
	LastSeq       uint64 `cbor:"last_seq"`
	LastMessageAt int64  `cbor:"last_message_at,omitempty"`
	LastSender    string `cbor:"last_sender,omitempty"`
	LastPreview   string `cbor:"last_preview,omitempty"`
}

// GetOrCreate resolves the conversation for an unordered participant pair and
// listing scope, creating it if absent. The lookup and the insert happen in
// one Badger transaction keyed on the normalized pair, so two clients racing
// over first contact converge on a single conversation: the losing commit
// conflicts, retries, and finds the winner's entry.
func (r ConversationRepository) GetOrCreate(a, b domain.UserID, listingRef string) (domain.Conversation, error) {
	if a == b {
		return domain.Conversation{}, apperrors.ErrInvalidRecipient
	}
	low, high := domain.NormalizePair(a, b)
	key := pairKey(low, high, listingRef)

	var conv domain.Conversation
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch err {
		case nil:
			var id string
			if err = item.Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			rec, err := loadConversation(txn, domain.ConversationID(id))
			if err != nil {
				return err
			}
			conv = toConversation(rec)
			return nil
		case badger.ErrKeyNotFound:
			// fallthrough to creation below
		default:
			return err
		}

		rec := conversationRecord{
			ID:         uuid.NewString(),
			Low:        string(low),
			High:       string(high),
			ListingRef: listingRef,
			CreatedAt:  time.Now().UTC().UnixNano(),
		}
		data, err := encMode.Marshal(rec)
		if err != nil {
			return err
		}
		id := domain.ConversationID(rec.ID)
		if err = txn.Set(key, []byte(rec.ID)); err != nil {
			return err
		}
		if err = txn.Set(convKey(id), data); err != nil {
			return err
		}
		if err = txn.Set(memberKey(low, id), nil); err != nil {
			return err
		}
		if err = txn.Set(memberKey(high, id), nil); err != nil {
			return err
		}
		conv = toConversation(rec)
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (r ConversationRepository) Get(id domain.ConversationID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		rec, err := loadConversation(txn, id)
		if err != nil {
			return err
		}
		conv = toConversation(rec)
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// ListForUser builds the inbox view: one summary per conversation the user
// belongs to, most recent activity first. Conversations without any message
// yet sort by creation time.
func (r ConversationRepository) ListForUser(user domain.UserID) ([]domain.ConversationSummary, error) {
	var summaries []domain.ConversationSummary
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(user)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := domain.ConversationID(it.Item().Key()[len(prefix):])
			rec, err := loadConversation(txn, id)
			if err != nil {
				return err
			}
			conv := toConversation(rec)
			summaries = append(summaries, domain.ConversationSummary{
				ID:               conv.ID,
				OtherParticipant: conv.Other(user),
				ListingRef:       conv.ListingRef,
				LastSender:       domain.UserID(rec.LastSender),
				LastPreview:      rec.LastPreview,
				LastActivity:     lastActivity(rec),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

func lastActivity(rec conversationRecord) time.Time {
	if rec.LastMessageAt != 0 {
		return time.Unix(0, rec.LastMessageAt).UTC()
	}
	return time.Unix(0, rec.CreatedAt).UTC()
}

func loadConversation(txn *badger.Txn, id domain.ConversationID) (conversationRecord, error) {
	item, err := txn.Get(convKey(id))
	if err == badger.ErrKeyNotFound {
		return conversationRecord{}, apperrors.ErrConversationNotFound
	}
	if err != nil {
		return conversationRecord{}, err
	}
	var rec conversationRecord
	if err = item.Value(func(val []byte) error {
		return decMode.Unmarshal(val, &rec)
	}); err != nil {
		return conversationRecord{}, err
	}
	return rec, nil
}

func toConversation(rec conversationRecord) domain.Conversation {
	return domain.Conversation{
		ID:              domain.ConversationID(rec.ID),
		ParticipantLow:  domain.UserID(rec.Low),
		ParticipantHigh: domain.UserID(rec.High),
		ListingRef:      rec.ListingRef,
		CreatedAt:       time.Unix(0, rec.CreatedAt).UTC(),
	}
}

// maxTxnRetries bounds optimistic retries on Badger write conflicts before
// the failure is reported as transient to the caller.
const maxTxnRetries = 5

func updateWithRetry(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
	return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
}
