//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_message_index.go -package=mocks
// Package search maintains a full-text index over message bodies, scoped per
// conversation. Indexing is best-effort and decoupled from persistence: a
// message missing from the index is still in the store, a search just won't
// surface it until reindexed.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blugelabs/bluge"

	"market-chat/domain"
)

type IMessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, conversation domain.ConversationID, terms string, limit int) ([]domain.Message, error)
	Close() error
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func Open(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

// Index upserts one message document. The document id carries the
// conversation and sequence, so reindexing the same message replaces rather
// than duplicates.
func (i *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(docID(message.Conversation, message.Seq)).
		AddField(bluge.NewTextField("body", message.Body).StoreValue()).
		AddField(bluge.NewKeywordField("conversation", string(message.Conversation))).
		AddField(bluge.NewKeywordField("sender", string(message.Sender)).StoreValue()).
		AddField(bluge.NewKeywordField("created_at", message.CreatedAt.Format(time.RFC3339Nano)).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search matches terms against message bodies within a single conversation.
// Results come back in ascending sequence order, like history does.
func (i *MessageIndex) Search(ctx context.Context, conversation domain.ConversationID, terms string, limit int) ([]domain.Message, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("body")).
		AddMust(bluge.NewTermQuery(string(conversation)).SetField("conversation"))

	request := bluge.NewTopNSearch(limit, query).SortBy([]string{"_id"})
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		msg := domain.Message{Conversation: conversation}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				msg.Seq = seqFromDocID(string(value))
			case "body":
				msg.Body = string(value)
			case "sender":
				msg.Sender = domain.UserID(value)
			case "created_at":
				if at, parseErr := time.Parse(time.RFC3339Nano, string(value)); parseErr == nil {
					msg.CreatedAt = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// docID packs conversation and zero-padded sequence, so the index's _id sort
// order matches append order within a conversation.
func docID(conversation domain.ConversationID, seq uint64) string {
	return fmt.Sprintf("%s:%019d", conversation, seq)
}

func seqFromDocID(id string) uint64 {
	idx := strings.LastIndexByte(id, ':')
	if idx < 0 {
		return 0
	}
	seq, _ := strconv.ParseUint(id[idx+1:], 10, 64)
	return seq
}
