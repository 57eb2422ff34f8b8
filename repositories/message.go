//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"market-chat/domain"
	apperrors "market-chat/errors"
)

type IMessageRepository interface {
	Append(conversation domain.ConversationID, sender domain.UserID, body, dedupToken string) (domain.Message, error)
	List(conversation domain.ConversationID, afterSeq uint64, limit int) ([]domain.Message, error)
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200

	previewLength = 120
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type messageRecord struct {
	Seq          uint64 `cbor:"seq"`
	Conversation string `cbor:"conversation"`
	Sender       string `cbor:"sender"`
	Body         string `cbor:"body"`
	At           int64  `cbor:"at"`
}

// Append persists a message at the conversation's tail. The whole operation
// is a single Badger transaction: load the conversation (participant check
// against the stored pair), bump the tail sequence, insert the message, and
// write the tail back. Two participants appending concurrently conflict on
// the conversation record and serialize against each other only; unrelated
// conversations never contend.
//
// The assigned timestamp is clamped to stay strictly after the previous
// message's, so both seq and createdAt are monotonic per conversation.
//
// A non-empty dedupToken makes the append idempotent: if the token was
// already consumed, the originally persisted message is returned and nothing
// is written.
func (m MessageRepository) Append(conversation domain.ConversationID, sender domain.UserID, body, dedupToken string) (domain.Message, error) {
	var msg domain.Message
	err := updateWithRetry(m.db, func(txn *badger.Txn) error {
		rec, err := loadConversation(txn, conversation)
		if err != nil {
			return err
		}
		if sender != domain.UserID(rec.Low) && sender != domain.UserID(rec.High) {
			return apperrors.ErrNotAParticipant
		}

		if dedupToken != "" {
			replay, found, err := m.replayedMessage(txn, conversation, sender, dedupToken)
			if err != nil {
				return err
			}
			if found {
				msg = replay
				return nil
			}
		}

		seq := rec.LastSeq + 1
		at := time.Now().UTC()
		if last := time.Unix(0, rec.LastMessageAt).UTC(); rec.LastSeq > 0 && !at.After(last) {
			at = last.Add(time.Nanosecond)
		}

		data, err := encMode.Marshal(messageRecord{
			Seq:          seq,
			Conversation: string(conversation),
			Sender:       string(sender),
			Body:         body,
			At:           at.UnixNano(),
		})
		if err != nil {
			return err
		}
		if err = txn.Set(msgKey(conversation, seq), data); err != nil {
			return err
		}

		rec.LastSeq = seq
		rec.LastMessageAt = at.UnixNano()
		rec.LastSender = string(sender)
		rec.LastPreview = preview(body)
		tail, err := encMode.Marshal(rec)
		if err != nil {
			return err
		}
		if err = txn.Set(convKey(conversation), tail); err != nil {
			return err
		}

		if dedupToken != "" {
			seqValue := []byte(strconv.FormatUint(seq, 10))
			if err = txn.Set(idemKey(conversation, sender, dedupToken), seqValue); err != nil {
				return err
			}
		}

		msg = domain.Message{
			Seq:          seq,
			Conversation: conversation,
			Sender:       sender,
			Body:         body,
			CreatedAt:    at,
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// replayedMessage resolves a previously consumed dedup token back to the
// message it produced.
func (m MessageRepository) replayedMessage(txn *badger.Txn, conversation domain.ConversationID, sender domain.UserID, token string) (domain.Message, bool, error) {
	item, err := txn.Get(idemKey(conversation, sender, token))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	var seq uint64
	if err = item.Value(func(val []byte) error {
		seq, err = strconv.ParseUint(string(val), 10, 64)
		return err
	}); err != nil {
		return domain.Message{}, false, err
	}

	stored, err := txn.Get(msgKey(conversation, seq))
	if err != nil {
		return domain.Message{}, false, err
	}
	var rec messageRecord
	if err = stored.Value(func(val []byte) error {
		return decMode.Unmarshal(val, &rec)
	}); err != nil {
		return domain.Message{}, false, err
	}
	return toMessage(rec), true, nil
}

// List returns messages in ascending sequence order, strictly after
// afterSeq. The limit is normalized server-side so a caller can never force
// an unbounded read. Thanks to the zero-padded sequence in the key, a plain
// forward prefix scan yields append order.
func (m MessageRepository) List(conversation domain.ConversationID, afterSeq uint64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		if _, err := loadConversation(txn, conversation); err != nil {
			return err
		}
		// The cursor is exclusive; nothing can follow the last representable
		// sequence, and afterSeq+1 must not wrap the seek back to zero.
		if afterSeq == math.MaxUint64 {
			return nil
		}
		prefix := msgPrefix(conversation)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(msgKey(conversation, afterSeq+1)); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var rec messageRecord
			if err := it.Item().Value(func(val []byte) error {
				return decMode.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			messages = append(messages, toMessage(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func toMessage(rec messageRecord) domain.Message {
	return domain.Message{
		Seq:          rec.Seq,
		Conversation: domain.ConversationID(rec.Conversation),
		Sender:       domain.UserID(rec.Sender),
		Body:         rec.Body,
		CreatedAt:    time.Unix(0, rec.At).UTC(),
	}
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength])
}
