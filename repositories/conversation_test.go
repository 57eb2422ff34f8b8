package repositories

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"market-chat/domain"
	apperrors "market-chat/errors"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_GetOrCreate_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, slog.Default())

	first, err := repository.GetOrCreate("alice", "bob", "L1")
	req.NoError(err)
	req.NotEmpty(first.ID)
	req.Equal(domain.UserID("alice"), first.ParticipantLow)
	req.Equal(domain.UserID("bob"), first.ParticipantHigh)

	// Same logical key, reversed order: must resolve to the same conversation.
	second, err := repository.GetOrCreate("bob", "alice", "L1")
	req.NoError(err)
	req.Equal(first.ID, second.ID)

	// A different listing scope is a different conversation.
	other, err := repository.GetOrCreate("alice", "bob", "L2")
	req.NoError(err)
	req.NotEqual(first.ID, other.ID)
}

func Test_GetOrCreate_Rejects_Self_Conversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, slog.Default())

	_, err := repository.GetOrCreate("alice", "alice", "")
	req.ErrorIs(err, apperrors.ErrInvalidRecipient)
}

func Test_GetOrCreate_Under_Concurrent_First_Contact(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, slog.Default())

	const racers = 16
	ids := make([]domain.ConversationID, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := domain.UserID("alice"), domain.UserID("bob")
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := repository.GetOrCreate(a, b, "L1")
			ids[i], errs[i] = conv.ID, err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		req.NoError(err)
	}

	for _, id := range ids {
		req.Equal(ids[0], id)
	}
}

func Test_Get_Unknown_Conversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, slog.Default())

	_, err := repository.Get("no-such-conversation")
	req.ErrorIs(err, apperrors.ErrConversationNotFound)
}

func Test_ListForUser_Orders_By_Last_Activity(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	conversations := NewConversationRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())

	older, err := conversations.GetOrCreate("alice", "bob", "L1")
	req.NoError(err)
	newer, err := conversations.GetOrCreate("alice", "carol", "L2")
	req.NoError(err)

	_, err = messages.Append(older.ID, "bob", "first thread", "")
	req.NoError(err)
	_, err = messages.Append(newer.ID, "carol", "second thread", "")
	req.NoError(err)

	summaries, err := conversations.ListForUser("alice")
	req.NoError(err)
	req.Len(summaries, 2)
	req.Equal(newer.ID, summaries[0].ID)
	req.Equal(domain.UserID("carol"), summaries[0].OtherParticipant)
	req.Equal("second thread", summaries[0].LastPreview)
	req.Equal(older.ID, summaries[1].ID)

	// bob only belongs to the first thread.
	bobSummaries, err := conversations.ListForUser("bob")
	req.NoError(err)
	req.Len(bobSummaries, 1)
	req.Equal(domain.UserID("alice"), bobSummaries[0].OtherParticipant)
}
