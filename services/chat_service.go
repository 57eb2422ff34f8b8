//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"log/slog"

	"market-chat/domain"
	"market-chat/domain/chat"
	"market-chat/domain/event"
	apperrors "market-chat/errors"
	"market-chat/hub"
	"market-chat/moderation"
	"market-chat/observability"
	"market-chat/repositories"
	"market-chat/search"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

type IChatService interface {
	Send(ctx context.Context, cmd chat.SendMessageCommand) (domain.Message, error)
	Start(ctx context.Context, cmd chat.StartConversationCommand) (domain.Conversation, error)
	History(ctx context.Context, cmd chat.HistoryCommand) ([]domain.Message, error)
	Conversations(ctx context.Context, user domain.UserID) ([]domain.ConversationSummary, error)
	Subscribe(ctx context.Context, user domain.UserID, conversation domain.ConversationID) (*hub.Subscription, error)
	Search(ctx context.Context, user domain.UserID, conversation domain.ConversationID, terms string, limit int) ([]domain.Message, error)
}

// ChatService drives a send end to end: validate, moderate, persist, then
// best-effort fan-out. Persistence is the commit point — a message is "sent"
// once the store has it, whether or not any live observer hears about it.
type ChatService struct {
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	users         repositories.IUserRepository
	registry      *hub.Registry
	index         search.IMessageIndex
	moderator     *moderation.Moderator
	metrics       *observability.Metrics
	log           *slog.Logger
}

func NewChatService(
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	registry *hub.Registry,
	index search.IMessageIndex,
	moderator *moderation.Moderator,
	metrics *observability.Metrics,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		registry:      registry,
		index:         index,
		moderator:     moderator,
		metrics:       metrics,
		log:           log,
	}
}

// Send validates the command, resolves the conversation lazily, appends the
// message, and only then publishes to subscribers and the search index.
// Store failures propagate unchanged; fan-out and indexing failures are
// logged and swallowed because the message is already durable.
func (s *ChatService) Send(_ context.Context, cmd chat.SendMessageCommand) (domain.Message, error) {
	if err := validateSend(cmd); err != nil {
		return domain.Message{}, err
	}

	exists, err := s.users.Exists(cmd.Receiver)
	if err != nil {
		return domain.Message{}, err
	}
	if !exists {
		return domain.Message{}, apperrors.ErrInvalidRecipient
	}

	body := cmd.Body
	if s.moderator != nil {
		body = s.moderator.Mask(body)
	}

	conv, err := s.conversations.GetOrCreate(cmd.Sender, cmd.Receiver, cmd.ListingRef)
	if err != nil {
		return domain.Message{}, err
	}

	msg, err := s.messages.Append(conv.ID, cmd.Sender, body, cmd.DedupToken)
	if err != nil {
		return domain.Message{}, err
	}
	s.metrics.IncrMessagesSent()

	s.registry.Publish(event.MessageAppended{Message: msg})
	if err := s.index.Index(msg); err != nil {
		s.log.Warn("message indexing failed",
			"conversation", msg.Conversation,
			"seq", msg.Seq,
			"error", err)
	}

	return msg, nil
}

// Start opens (or finds) the conversation without sending anything.
func (s *ChatService) Start(_ context.Context, cmd chat.StartConversationCommand) (domain.Conversation, error) {
	exists, err := s.users.Exists(cmd.Participant)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !exists {
		return domain.Conversation{}, apperrors.ErrInvalidRecipient
	}
	return s.conversations.GetOrCreate(cmd.Initiator, cmd.Participant, cmd.ListingRef)
}

// History pages through a conversation the requester belongs to.
func (s *ChatService) History(_ context.Context, cmd chat.HistoryCommand) ([]domain.Message, error) {
	if err := s.requireParticipant(cmd.Conversation, cmd.Requester); err != nil {
		return nil, err
	}
	return s.messages.List(cmd.Conversation, cmd.AfterSeq, cmd.Limit)
}

func (s *ChatService) Conversations(_ context.Context, user domain.UserID) ([]domain.ConversationSummary, error) {
	return s.conversations.ListForUser(user)
}

// Subscribe registers user for live pushes on a conversation they belong to.
func (s *ChatService) Subscribe(_ context.Context, user domain.UserID, conversation domain.ConversationID) (*hub.Subscription, error) {
	if err := s.requireParticipant(conversation, user); err != nil {
		return nil, err
	}
	return s.registry.Subscribe(conversation, user), nil
}

func (s *ChatService) Search(ctx context.Context, user domain.UserID, conversation domain.ConversationID, terms string, limit int) ([]domain.Message, error) {
	if err := s.requireParticipant(conversation, user); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.index.Search(ctx, conversation, terms, limit)
}

// requireParticipant gates reads and subscriptions: a missing conversation
// is reported as such, an existing one is forbidden territory for anyone
// outside its pair.
func (s *ChatService) requireParticipant(conversation domain.ConversationID, user domain.UserID) error {
	conv, err := s.conversations.Get(conversation)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(user) {
		return apperrors.ErrForbidden
	}
	return nil
}
