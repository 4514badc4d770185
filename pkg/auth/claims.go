// Package auth mints and verifies the HS256 access tokens presented by
// buyers, sellers and admins.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// Subject is who a token speaks for.
type Subject struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Validate rejects a nil user or unknown role.
func (s Subject) Validate() error {
	if s.UserID == uuid.Nil {
		return fmt.Errorf("user id is required")
	}
	if !s.Role.IsValid() {
		return fmt.Errorf("invalid role %q", s.Role)
	}
	return nil
}

// claims is the token body. The user id travels in the registered "sub"
// claim.
type claims struct {
	Role enums.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *claims) subject() (Subject, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return Subject{}, fmt.Errorf("token subject: %w", err)
	}
	sub := Subject{UserID: userID, Role: c.Role}
	if err := sub.Validate(); err != nil {
		return Subject{}, err
	}
	return sub, nil
}
