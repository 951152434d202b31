package authority

import (
	"context"
	"strings"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/models"
)

// TokenVerifier maps a bearer token to the user it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (models.UUID, error)
}

// StaticTokens is a fixed token table.
type StaticTokens map[string]models.UUID

// Verify looks token up in the table.
func (s StaticTokens) Verify(_ context.Context, token string) (models.UUID, error) {
	if token == "" {
		return "", apperrors.New(apperrors.ErrUnauthorized, "missing bearer token")
	}
	userID, ok := s[token]
	if !ok {
		return "", apperrors.New(apperrors.ErrUnauthorized, "unknown bearer token")
	}
	return userID, nil
}

// ParseTokens reads "token=userID" pairs.
func ParseTokens(pairs []string) (StaticTokens, error) {
	tokens := make(StaticTokens, len(pairs))
	for _, p := range pairs {
		token, userID, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || token == "" || userID == "" {
			return nil, apperrors.Newf(apperrors.ErrValidation, "invalid token pair %q, expected token=userID", p)
		}
		tokens[token] = models.UUID(userID)
	}
	return tokens, nil
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
