package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studyrooms-backend/internal/middleware"
	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

type tokenParser interface {
	ParseToken(tokenStr string) (*middleware.Claims, error)
}

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Gate authenticates a connection attempt and resolves the identity bound
// to the connection for its lifetime.
type Gate struct {
	tokens tokenParser
	users  userLookup
}

func NewGate(tokens tokenParser, users userLookup) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Authenticate reads the credential from the "token" query parameter or a
// bearer header. Failures are *services.AuthenticationError unless the
// user store itself failed.
func (g *Gate) Authenticate(r *http.Request) (models.Identity, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr, _ = middleware.BearerToken(r)
	}
	if tokenStr == "" {
		return models.Identity{}, &services.AuthenticationError{Message: "Missing credential"}
	}

	claims, err := g.tokens.ParseToken(tokenStr)
	if err != nil {
		if errors.Is(err, middleware.ErrTokenExpired) {
			return models.Identity{}, &services.AuthenticationError{Message: "Token has expired"}
		}
		return models.Identity{}, &services.AuthenticationError{Message: "Invalid token"}
	}

	identity := models.Identity{UserID: claims.UserID, UserName: claims.UserName}
	if identity.UserName != "" {
		return identity, nil
	}

	user, err := g.users.GetByID(r.Context(), claims.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Identity{}, &services.AuthenticationError{Message: "Unknown user"}
	}
	if err != nil {
		return models.Identity{}, services.Persistence("resolve user", err)
	}
	identity.UserName = strings.TrimSpace(user.FullName)
	return identity, nil
}
