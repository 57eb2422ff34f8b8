//go:generate go run go.uber.org/mock/mockgen -source=verifier.go -destination=../mocks/mock_verifier.go -package=mocks
package auth

import (
	"context"
	"fmt"

	"market-chat/domain"
	apperrors "market-chat/errors"
	"market-chat/repositories"
)

// IVerifier resolves a bearer credential to a stable user identifier.
// The messaging core calls it before any mutation and aborts on failure;
// it stays agnostic to the concrete token scheme behind the interface.
type IVerifier interface {
	Resolve(ctx context.Context, credential string) (domain.UserID, error)
}

// TokenVerifier is the JWT-backed implementation: signature and expiry
// checks, then an existence check against the user repository so a token
// for a deleted account resolves to nobody.
type TokenVerifier struct {
	secret []byte
	users  repositories.IUserRepository
}

func NewTokenVerifier(secret []byte, users repositories.IUserRepository) TokenVerifier {
	return TokenVerifier{secret: secret, users: users}
}

func (v TokenVerifier) Resolve(_ context.Context, credential string) (domain.UserID, error) {
	if credential == "" {
		return "", apperrors.ErrMissingCredential
	}
	claims, err := ValidateToken(credential, v.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidCredential, err)
	}

	userID := domain.UserID(claims.UserID)
	exists, err := v.users.Exists(userID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", apperrors.ErrUnknownUser
	}
	return userID, nil
}
