package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenClaims is the payload the identity provider signs into access
// tokens. This service only consumes them; it never issues end-user tokens.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"uid"`
	jwt.RegisteredClaims
}

// AccessTokenPayload is the input for minting tokens in tests and tooling.
type AccessTokenPayload struct {
	UserID uuid.UUID
	JTI    string
}
