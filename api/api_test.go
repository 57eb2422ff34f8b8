package api_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"market-chat/api"
	"market-chat/auth"
	"market-chat/domain"
	"market-chat/hub"
	"market-chat/observability"
	"market-chat/repositories"
	"market-chat/search"
	"market-chat/services"
)

type apiFixture struct {
	server *httptest.Server
	secret []byte
}

func newAPIFixture(t *testing.T, users ...string) *apiFixture {
	t.Helper()
	req := require.New(t)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := search.Open(t.TempDir(), log)
	req.NoError(err)
	t.Cleanup(func() { _ = index.Close() })

	userRepo := repositories.NewUserRepository(db)
	for _, u := range users {
		req.NoError(userRepo.Put(repositories.User{ID: domain.UserID(u), CreatedAt: time.Now()}))
	}

	metrics := observability.NewMetrics()
	registry := hub.NewRegistry(log, metrics, 16)
	service := services.NewChatService(
		repositories.NewConversationRepository(db, log),
		repositories.NewMessageRepository(db, log),
		userRepo,
		registry,
		index,
		nil,
		metrics,
		log,
	)

	secret := []byte("api-test-secret")
	handler := api.NewChatHandler(service, log)
	router := api.NewRouter(handler, auth.NewTokenVerifier(secret, userRepo), registry, metrics, log)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiFixture{server: server, secret: secret}
}

func (f *apiFixture) token(t *testing.T, user string) string {
	t.Helper()
	token, err := auth.GenerateToken(user, f.secret, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) request(t *testing.T, method, path, token string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(encoded)
	}
	httpReq, err := http.NewRequest(method, f.server.URL+path, payload)
	require.NoError(t, err)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.server.Client().Do(httpReq)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type messageBody struct {
	ID             uint64 `json:"id"`
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Body           string `json:"body"`
	CreatedAt      string `json:"createdAt"`
}

type pageBody struct {
	Messages  []messageBody `json:"messages"`
	NextAfter uint64        `json:"nextAfter"`
}

func TestAPI_SendAndHistory(t *testing.T) {
	t.Run("should carry a buyer and seller exchange end to end", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice", "bob")

		resp := f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
			map[string]string{"body": "Hi, is this still available?", "listingRef": "L1"}, nil)
		req.Equal(http.StatusCreated, resp.StatusCode)
		first := decode[messageBody](t, resp)
		req.Equal(uint64(1), first.ID)
		req.Equal("alice", first.Sender)
		req.NotEmpty(first.ConversationID)

		resp = f.request(t, http.MethodPost, "/users/alice/messages", f.token(t, "bob"),
			map[string]string{"body": "Yes, it is!", "listingRef": "L1"}, nil)
		req.Equal(http.StatusCreated, resp.StatusCode)
		second := decode[messageBody](t, resp)
		req.Equal(uint64(2), second.ID)
		req.Equal(first.ConversationID, second.ConversationID)

		resp = f.request(t, http.MethodGet, "/conversations/"+first.ConversationID+"/messages", f.token(t, "alice"), nil, nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		page := decode[pageBody](t, resp)
		req.Len(page.Messages, 2)
		req.Equal("Hi, is this still available?", page.Messages[0].Body)
		req.Equal("Yes, it is!", page.Messages[1].Body)
		req.Equal(uint64(2), page.NextAfter)
	})

	t.Run("should page with the after cursor", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice", "bob")

		var conversation string
		for i := 1; i <= 5; i++ {
			resp := f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
				map[string]string{"body": fmt.Sprintf("message %d", i)}, nil)
			req.Equal(http.StatusCreated, resp.StatusCode)
			conversation = decode[messageBody](t, resp).ConversationID
		}

		resp := f.request(t, http.MethodGet, "/conversations/"+conversation+"/messages?after=2&limit=2", f.token(t, "bob"), nil, nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		page := decode[pageBody](t, resp)
		req.Len(page.Messages, 2)
		req.Equal(uint64(3), page.Messages[0].ID)
		req.Equal(uint64(4), page.Messages[1].ID)
		req.Equal(uint64(4), page.NextAfter)
	})

	t.Run("should replay instead of duplicating on an idempotent retry", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice", "bob")
		headers := map[string]string{"Idempotency-Key": "retry-1"}

		resp := f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
			map[string]string{"body": "only once"}, headers)
		req.Equal(http.StatusCreated, resp.StatusCode)
		first := decode[messageBody](t, resp)

		resp = f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
			map[string]string{"body": "only once"}, headers)
		req.Equal(http.StatusCreated, resp.StatusCode)
		replayed := decode[messageBody](t, resp)
		req.Equal(first.ID, replayed.ID)

		resp = f.request(t, http.MethodGet, "/conversations/"+first.ConversationID+"/messages", f.token(t, "alice"), nil, nil)
		page := decode[pageBody](t, resp)
		req.Len(page.Messages, 1)
	})
}

func TestAPI_Validation(t *testing.T) {
	t.Run("should reject an empty body", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice", "bob")

		resp := f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
			map[string]string{"body": "   "}, nil)
		req.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should reject an unknown receiver", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice")

		resp := f.request(t, http.MethodPost, "/users/nobody/messages", f.token(t, "alice"),
			map[string]string{"body": "hello?"}, nil)
		req.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPI_Auth(t *testing.T) {
	t.Run("should reject a request without credential", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice")

		resp := f.request(t, http.MethodGet, "/conversations", "", nil, nil)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should reject a garbage token", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice")

		resp := f.request(t, http.MethodGet, "/conversations", "not-a-jwt", nil, nil)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should reject a valid token for a deleted account", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice")

		resp := f.request(t, http.MethodGet, "/conversations", f.token(t, "ghost"), nil, nil)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAPI_Authorization(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t, "alice", "bob", "carol")

	resp := f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
		map[string]string{"body": "private"}, nil)
	req.Equal(http.StatusCreated, resp.StatusCode)
	conversation := decode[messageBody](t, resp).ConversationID

	t.Run("should hide an existing conversation from a stranger", func(t *testing.T) {
		req := require.New(t)
		resp := f.request(t, http.MethodGet, "/conversations/"+conversation+"/messages", f.token(t, "carol"), nil, nil)
		req.Equal(http.StatusForbidden, resp.StatusCode)

		body := decode[map[string]string](t, resp)
		req.Equal("forbidden", body["error"])
	})

	t.Run("should report an unknown conversation as not found to a participant", func(t *testing.T) {
		req := require.New(t)
		resp := f.request(t, http.MethodGet, "/conversations/no-such-thread/messages", f.token(t, "alice"), nil, nil)
		req.Equal(http.StatusNotFound, resp.StatusCode)
	})
}

func TestAPI_ConversationList(t *testing.T) {
	t.Run("should list the caller's threads with the most recent first", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice", "bob", "carol")

		resp := f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
			map[string]string{"body": "about the bike"}, nil)
		req.Equal(http.StatusCreated, resp.StatusCode)

		resp = f.request(t, http.MethodPost, "/users/carol/messages", f.token(t, "alice"),
			map[string]string{"body": "about the couch"}, nil)
		req.Equal(http.StatusCreated, resp.StatusCode)

		resp = f.request(t, http.MethodGet, "/conversations", f.token(t, "alice"), nil, nil)
		req.Equal(http.StatusOK, resp.StatusCode)

		summaries := decode[[]map[string]any](t, resp)
		req.Len(summaries, 2)
		req.Equal("carol", summaries[0]["otherParticipant"])
		req.Equal("about the couch", summaries[0]["lastPreview"])
		req.Equal("bob", summaries[1]["otherParticipant"])
	})
}

func TestAPI_Search(t *testing.T) {
	t.Run("should find indexed messages within the conversation", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice", "bob")

		resp := f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
			map[string]string{"body": "the blue bicycle is available"}, nil)
		req.Equal(http.StatusCreated, resp.StatusCode)
		conversation := decode[messageBody](t, resp).ConversationID

		resp = f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
			map[string]string{"body": "unrelated chatter"}, nil)
		req.Equal(http.StatusCreated, resp.StatusCode)

		resp = f.request(t, http.MethodGet, "/conversations/"+conversation+"/messages/search?q=bicycle", f.token(t, "bob"), nil, nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		page := decode[pageBody](t, resp)
		req.Len(page.Messages, 1)
		req.Contains(page.Messages[0].Body, "bicycle")
	})
}

func TestAPI_Stream(t *testing.T) {
	t.Run("should push a persisted message to a connected subscriber", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice", "bob")

		resp := f.request(t, http.MethodPost, "/conversations", f.token(t, "alice"),
			map[string]string{"participant": "bob"}, nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		conversation := decode[map[string]any](t, resp)["id"].(string)

		streamReq, err := http.NewRequest(http.MethodGet, f.server.URL+"/conversations/"+conversation+"/stream", nil)
		req.NoError(err)
		streamReq.Header.Set("Authorization", "Bearer "+f.token(t, "bob"))

		streamResp, err := f.server.Client().Do(streamReq)
		req.NoError(err)
		defer streamResp.Body.Close()
		req.Equal(http.StatusOK, streamResp.StatusCode)
		req.Equal("text/event-stream", streamResp.Header.Get("Content-Type"))

		// The subscription is live once the stream headers arrive; only then
		// is the send guaranteed to fan out.
		waitForSubscribers(t, f, 1)

		sendResp := f.request(t, http.MethodPost, "/users/bob/messages", f.token(t, "alice"),
			map[string]string{"body": "still interested?"}, nil)
		req.Equal(http.StatusCreated, sendResp.StatusCode)

		scanner := bufio.NewScanner(streamResp.Body)
		var data string
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
				break
			}
		}
		req.NotEmpty(data)

		var pushed messageBody
		req.NoError(json.Unmarshal([]byte(data), &pushed))
		req.Equal("still interested?", pushed.Body)
		req.Equal("alice", pushed.Sender)
		req.Equal(conversation, pushed.ConversationID)
	})

	t.Run("should refuse a stream from a stranger", func(t *testing.T) {
		req := require.New(t)
		f := newAPIFixture(t, "alice", "bob", "carol")

		resp := f.request(t, http.MethodPost, "/conversations", f.token(t, "alice"),
			map[string]string{"participant": "bob"}, nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		conversation := decode[map[string]any](t, resp)["id"].(string)

		resp = f.request(t, http.MethodGet, "/conversations/"+conversation+"/stream", f.token(t, "carol"), nil, nil)
		req.Equal(http.StatusForbidden, resp.StatusCode)
	})
}

func waitForSubscribers(t *testing.T, f *apiFixture, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp := f.request(t, http.MethodGet, "/debug/stats", "", nil, nil)
		stats := decode[map[string]any](t, resp)
		if int(stats["active_subscriptions"].(float64)) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber never registered")
}

func TestAPI_Probes(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	t.Run("should answer the health probe without credential", func(t *testing.T) {
		resp := f.request(t, http.MethodGet, "/healthz", "", nil, nil)
		req.Equal(http.StatusOK, resp.StatusCode)
	})

	t.Run("should expose runtime counters", func(t *testing.T) {
		resp := f.request(t, http.MethodGet, "/debug/stats", "", nil, nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		stats := decode[map[string]any](t, resp)
		req.Contains(stats, "messages_sent")
		req.Contains(stats, "active_subscriptions")
	})
}
