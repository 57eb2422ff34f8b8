package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/samber/lo"

	"market-chat/domain"
	apperrors "market-chat/errors"
)

// messageResponse is the wire shape of a persisted message.
type messageResponse struct {
	ID             uint64 `json:"id"`
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Body           string `json:"body"`
	CreatedAt      string `json:"createdAt"`
}

func toMessageResponse(msg domain.Message) messageResponse {
	return messageResponse{
		ID:             msg.Seq,
		ConversationID: string(msg.Conversation),
		Sender:         string(msg.Sender),
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toMessageResponses(messages []domain.Message) []messageResponse {
	return lo.Map(messages, func(item domain.Message, _ int) messageResponse {
		return toMessageResponse(item)
	})
}

type conversationResponse struct {
	ID          string `json:"id"`
	Participant string `json:"participant"`
	ListingRef  string `json:"listingRef,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

type summaryResponse struct {
	ID               string `json:"id"`
	OtherParticipant string `json:"otherParticipant"`
	ListingRef       string `json:"listingRef,omitempty"`
	LastSender       string `json:"lastSender,omitempty"`
	LastPreview      string `json:"lastPreview,omitempty"`
	LastActivity     string `json:"lastActivity"`
}

type messagePage struct {
	Messages []messageResponse `json:"messages"`
	// NextAfter feeds the next request's "after" parameter; zero when the
	// page is empty.
	NextAfter uint64 `json:"nextAfter"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps the failure taxonomy onto a status code. Internals never
// leak: anything outside the taxonomy becomes a bare 500.
func respondError(w http.ResponseWriter, err error) {
	status := apperrors.MapToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if errors.Is(err, apperrors.ErrForbidden) || errors.Is(err, apperrors.ErrNotAParticipant) {
		// Generic body: never confirm to a stranger what exists.
		message = apperrors.ErrForbidden.Error()
	}
	respondJSON(w, status, map[string]string{"error": message})
}
