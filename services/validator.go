package services

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"market-chat/domain"
	"market-chat/domain/chat"
	apperrors "market-chat/errors"
)

var validate = validator.New()

type sendRequest struct {
	Receiver string `validate:"required"`
	Body     string `validate:"required"`
}

// validateSend checks the parts of a send the caller controls: a present,
// non-blank body within the code point bound, and a plausible receiver.
// Participant membership is not checked here; the store owns that.
func validateSend(cmd chat.SendMessageCommand) error {
	if err := validate.Struct(sendRequest{
		Receiver: string(cmd.Receiver),
		Body:     cmd.Body,
	}); err != nil {
		if strings.TrimSpace(string(cmd.Receiver)) == "" {
			return apperrors.ErrInvalidRecipient
		}
		return apperrors.ErrEmptyBody
	}

	if strings.TrimSpace(cmd.Body) == "" {
		return apperrors.ErrEmptyBody
	}
	if utf8.RuneCountInString(cmd.Body) > domain.MaxBodyLength {
		return apperrors.ErrBodyTooLong
	}
	if cmd.Receiver == cmd.Sender {
		return apperrors.ErrInvalidRecipient
	}
	return nil
}
