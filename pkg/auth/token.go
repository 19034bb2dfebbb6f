package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/pkg/config"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
)

const accessTokenTTL = 24 * time.Hour

// SignAccessToken mints an HS256 access token carrying the user id. Production
// tokens come from the identity provider; this exists for tests and local
// tooling that need a valid token against the same secret.
func SignAccessToken(cfg config.JWTConfig, payload AccessTokenPayload) (string, error) {
	if payload.UserID == uuid.Nil {
		return "", errors.New(errors.CodeValidation, "user id is required")
	}

	now := time.Now().UTC()
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			ID:        payload.JTI,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "failed to sign access token")
	}
	return signed, nil
}

// ParseAccessToken validates the signature, algorithm, expiry, and issuer of
// an access token and returns its claims.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.CodeUnauthorized, "unexpected signing method")
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnauthorized, err, "invalid access token")
	}
	if !token.Valid {
		return nil, errors.New(errors.CodeUnauthorized, "invalid access token")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeUnauthorized, "token missing user id")
	}
	return claims, nil
}
