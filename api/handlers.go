package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"market-chat/auth"
	"market-chat/domain"
	"market-chat/domain/chat"
	"market-chat/domain/event"
	apperrors "market-chat/errors"
	"market-chat/services"
)

// streamHeartbeat keeps idle SSE connections alive through proxies.
const streamHeartbeat = 25 * time.Second

type ChatHandler struct {
	service services.IChatService
	log     *slog.Logger
}

func NewChatHandler(service services.IChatService, log *slog.Logger) *ChatHandler {
	return &ChatHandler{service: service, log: log}
}

type sendMessageRequest struct {
	Body       string `json:"body"`
	ListingRef string `json:"listingRef,omitempty"`
}

// SendMessage handles POST /conversations/{participant}/messages. The
// conversation is resolved lazily from the authenticated sender and the
// receiver in the path; an Idempotency-Key header makes retries safe.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sender, ok := auth.UserFromContext(r.Context())
	if !ok {
		respondError(w, apperrors.ErrMissingCredential)
		return
	}

	var body sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, fmt.Errorf("%w: malformed request body", apperrors.ErrEmptyBody))
		return
	}

	msg, err := h.service.Send(r.Context(), chat.SendMessageCommand{
		Sender:     sender,
		Receiver:   domain.UserID(chi.URLParam(r, "participant")),
		Body:       body.Body,
		ListingRef: body.ListingRef,
		DedupToken: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toMessageResponse(msg))
}

type startConversationRequest struct {
	Participant string `json:"participant"`
	ListingRef  string `json:"listingRef,omitempty"`
}

// StartConversation handles POST /conversations: the explicit "start chat"
// action, idempotent on the (pair, listing) key.
func (h *ChatHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	initiator, ok := auth.UserFromContext(r.Context())
	if !ok {
		respondError(w, apperrors.ErrMissingCredential)
		return
	}

	var body startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, apperrors.ErrInvalidRecipient)
		return
	}

	conv, err := h.service.Start(r.Context(), chat.StartConversationCommand{
		Initiator:   initiator,
		Participant: domain.UserID(body.Participant),
		ListingRef:  body.ListingRef,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conversationResponse{
		ID:          string(conv.ID),
		Participant: string(conv.Other(initiator)),
		ListingRef:  conv.ListingRef,
		CreatedAt:   conv.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// History handles GET /conversations/{id}/messages?after={seq}&limit={n}.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	requester, ok := auth.UserFromContext(r.Context())
	if !ok {
		respondError(w, apperrors.ErrMissingCredential)
		return
	}

	after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.service.History(r.Context(), chat.HistoryCommand{
		Requester:    requester,
		Conversation: domain.ConversationID(chi.URLParam(r, "id")),
		AfterSeq:     after,
		Limit:        limit,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	page := messagePage{Messages: toMessageResponses(messages)}
	if len(messages) > 0 {
		page.NextAfter = messages[len(messages)-1].Seq
	}
	respondJSON(w, http.StatusOK, page)
}

// Conversations handles GET /conversations for the authenticated user.
func (h *ChatHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		respondError(w, apperrors.ErrMissingCredential)
		return
	}

	summaries, err := h.service.Conversations(r.Context(), user)
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]summaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, summaryResponse{
			ID:               string(s.ID),
			OtherParticipant: string(s.OtherParticipant),
			ListingRef:       s.ListingRef,
			LastSender:       string(s.LastSender),
			LastPreview:      s.LastPreview,
			LastActivity:     s.LastActivity.UTC().Format(time.RFC3339Nano),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// Search handles GET /conversations/{id}/messages/search?q={terms}&limit={n}.
func (h *ChatHandler) Search(w http.ResponseWriter, r *http.Request) {
	requester, ok := auth.UserFromContext(r.Context())
	if !ok {
		respondError(w, apperrors.ErrMissingCredential)
		return
	}

	terms := r.URL.Query().Get("q")
	if terms == "" {
		respondJSON(w, http.StatusOK, messagePage{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.service.Search(r.Context(), requester,
		domain.ConversationID(chi.URLParam(r, "id")), terms, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messagePage{Messages: toMessageResponses(messages)})
}

// Stream handles GET /conversations/{id}/stream: a long-lived SSE channel
// emitting message payloads as they are published. The subscription lives
// exactly as long as the connection; cleanup is deferred so a dropped client
// never leaks a registry entry.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		respondError(w, apperrors.ErrMissingCredential)
		return
	}

	conversation := domain.ConversationID(chi.URLParam(r, "id"))
	sub, err := h.service.Subscribe(r.Context(), user, conversation)
	if err != nil {
		respondError(w, err)
		return
	}
	defer sub.Cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Debug("stream client disconnected",
				"user", user,
				"conversation", conversation)
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt := <-sub.Sink.Events:
			appended, ok := evt.(event.MessageAppended)
			if !ok {
				continue
			}
			data, err := json.Marshal(toMessageResponse(appended.Message))
			if err != nil {
				h.log.Error("failed to encode stream event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
