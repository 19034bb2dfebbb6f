package apikeys

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/internal/plans"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
	"github.com/lumora-ai/lumora-backend/pkg/security"
)

const maxKeyNameLen = 100

// Service issues and verifies machine credentials. Plaintext secrets exist
// only in the Create response; storage holds the digest and display prefix.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, name string) (*CreatedKey, error)
	Authenticate(ctx context.Context, secret string) (*models.APIKey, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	Revoke(ctx context.Context, userID, keyID uuid.UUID) error
}

// CreatedKey carries the one-time plaintext secret alongside the stored row.
type CreatedKey struct {
	Key    models.APIKey
	Secret string
}

type service struct {
	repo  Repository
	plans plans.Service
	logg  *logger.Logger
	now   func() time.Time
}

// ServiceParams wires the key gate dependencies.
type ServiceParams struct {
	Repo   Repository
	Plans  plans.Service
	Logger *logger.Logger
	Now    func() time.Time
}

// NewService validates dependencies and returns the key gate.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("api key repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plans service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:  params.Repo,
		plans: params.Plans,
		logg:  params.Logger,
		now:   now,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, name string) (*CreatedKey, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New(errors.CodeValidation, "key name is required")
	}
	if len(name) > maxKeyNameLen {
		return nil, errors.New(errors.CodeValidation, "key name too long")
	}

	enabled, err := s.plans.FeatureEnabled(ctx, userID, plans.FeatureAPIAccess)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, errors.New(errors.CodeFeatureDisabled, "plan does not include API access")
	}

	generated, err := security.GenerateKeySecret()
	if err != nil {
		return nil, err
	}

	key := models.APIKey{
		UserID:     userID,
		Name:       name,
		Prefix:     generated.Prefix,
		SecretHash: generated.SecretHash,
	}
	if err := s.repo.Create(ctx, &key); err != nil {
		return nil, err
	}

	return &CreatedKey{Key: key, Secret: generated.Secret}, nil
}

func (s *service) Authenticate(ctx context.Context, secret string) (*models.APIKey, error) {
	secret = strings.TrimSpace(secret)
	if !security.LooksLikeKeySecret(secret) {
		return nil, errors.New(errors.CodeUnauthorized, "invalid API key")
	}

	key, err := s.repo.FindBySecretHash(ctx, security.HashKeySecret(secret))
	if err != nil {
		return nil, err
	}
	if key == nil || key.Revoked {
		return nil, errors.New(errors.CodeUnauthorized, "invalid API key")
	}

	enabled, err := s.plans.FeatureEnabled(ctx, key.UserID, plans.FeatureAPIAccess)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, errors.New(errors.CodeFeatureDisabled, "plan does not include API access")
	}

	// Best effort; a failed touch never blocks the request.
	if err := s.repo.TouchLastUsed(ctx, key.ID, s.now().UTC()); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithAPIKeyID(ctx, key.ID.String()), "failed to update key last-used: "+err.Error())
	}

	return key, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}

// Revoke disables a key. Revoking an already-revoked key succeeds.
func (s *service) Revoke(ctx context.Context, userID, keyID uuid.UUID) error {
	if userID == uuid.Nil || keyID == uuid.Nil {
		return errors.New(errors.CodeValidation, "user id and key id are required")
	}

	key, err := s.repo.FindByID(ctx, userID, keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return errors.New(errors.CodeNotFound, "API key not found")
	}
	if key.Revoked {
		return nil
	}
	return s.repo.MarkRevoked(ctx, keyID)
}
