package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumora-ai/lumora-backend/pkg/db"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/metrics"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

// GrantPeriodConstraint is the unique index guarding one recurring grant per
// account per period.
const GrantPeriodConstraint = "ux_credit_tx_user_period"

// Service exposes balance reads and the two balance-changing operations.
// Grant and Consume are atomic: the transaction row and the balance check
// commit together or not at all.
type Service interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	Grant(ctx context.Context, input GrantInput) (*MovementResult, error)
	Consume(ctx context.Context, input ConsumeInput) (*MovementResult, error)
	// ConsumeInTx runs the consume inside a caller-managed transaction so a
	// charge can commit atomically with the caller's own writes.
	ConsumeInTx(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*MovementResult, error)
	HasGrantForPeriod(ctx context.Context, userID uuid.UUID, period string) (bool, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	// ListGrantCandidates lists accounts with no monthly grant for the period
	// yet, discovered from both ledger history and subscription records.
	ListGrantCandidates(ctx context.Context, period string, limit int) ([]uuid.UUID, error)
}

// GrantInput adds credits to an account. GrantPeriod is set only for
// recurring grants and activates the one-per-period uniqueness guard.
type GrantInput struct {
	UserID      uuid.UUID
	Amount      int64
	Reason      enums.CreditReason
	GrantPeriod *string
	Metadata    json.RawMessage
}

// ConsumeInput removes credits from an account.
type ConsumeInput struct {
	UserID   uuid.UUID
	Amount   int64
	Reason   enums.CreditReason
	Metadata json.RawMessage
}

// MovementResult reports the committed transaction and the balance after it.
type MovementResult struct {
	Transaction *models.CreditTransaction
	NewBalance  int64
}

// HistoryPage is one page of an account's transaction history.
type HistoryPage struct {
	Transactions []models.CreditTransaction
	NextCursor   string
}

type service struct {
	client  *db.Client
	repo    Repository
	metrics *metrics.LedgerMetrics
}

// ServiceParams wires the ledger service dependencies.
type ServiceParams struct {
	Client  *db.Client
	Repo    Repository
	Metrics *metrics.LedgerMetrics
}

// NewService validates dependencies and returns the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{
		client:  params.Client,
		repo:    params.Repo,
		metrics: params.Metrics,
	}, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, errors.New(errors.CodeValidation, "user id is required")
	}
	return s.repo.Balance(ctx, userID)
}

func (s *service) Grant(ctx context.Context, input GrantInput) (*MovementResult, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if input.Amount <= 0 {
		return nil, errors.New(errors.CodeInvalidAmount, "grant amount must be positive")
	}
	if input.Reason == "" {
		return nil, errors.New(errors.CodeValidation, "credit reason is required")
	}

	var result *MovementResult
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.EnsureAccount(ctx, input.UserID); err != nil {
			return err
		}
		if err := repo.LockAccount(ctx, input.UserID); err != nil {
			return err
		}

		txn := &models.CreditTransaction{
			UserID:      input.UserID,
			Delta:       input.Amount,
			Reason:      input.Reason,
			GrantPeriod: input.GrantPeriod,
			Metadata:    input.Metadata,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			if db.IsUniqueViolation(err, GrantPeriodConstraint) {
				return errors.Wrap(errors.CodeConflict, err, "grant already applied for period")
			}
			return err
		}

		balance, err := repo.Balance(ctx, input.UserID)
		if err != nil {
			return err
		}
		result = &MovementResult{Transaction: txn, NewBalance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddGranted(string(input.Reason), input.Amount)
	return result, nil
}

func (s *service) Consume(ctx context.Context, input ConsumeInput) (*MovementResult, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if input.Amount <= 0 {
		return nil, errors.New(errors.CodeInvalidAmount, "consume amount must be positive")
	}
	if input.Reason == "" {
		return nil, errors.New(errors.CodeValidation, "credit reason is required")
	}

	var result *MovementResult
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.consumeLocked(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *service) ConsumeInTx(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*MovementResult, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if input.Amount <= 0 {
		return nil, errors.New(errors.CodeInvalidAmount, "consume amount must be positive")
	}
	if input.Reason == "" {
		return nil, errors.New(errors.CodeValidation, "credit reason is required")
	}
	if tx == nil {
		return nil, errors.New(errors.CodeInternal, "transaction handle is required")
	}
	return s.consumeLocked(ctx, tx, input)
}

func (s *service) consumeLocked(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*MovementResult, error) {
	repo := s.repo.WithTx(tx)

	if err := repo.EnsureAccount(ctx, input.UserID); err != nil {
		return nil, err
	}
	if err := repo.LockAccount(ctx, input.UserID); err != nil {
		return nil, err
	}

	balance, err := repo.Balance(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if balance-input.Amount < 0 {
		return nil, errors.New(errors.CodeInsufficientCredits, "insufficient credits").
			WithDetails(map[string]any{"balance": balance, "requested": input.Amount})
	}

	txn := &models.CreditTransaction{
		UserID:   input.UserID,
		Delta:    -input.Amount,
		Reason:   input.Reason,
		Metadata: input.Metadata,
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return &MovementResult{Transaction: txn, NewBalance: balance - input.Amount}, nil
}

func (s *service) HasGrantForPeriod(ctx context.Context, userID uuid.UUID, period string) (bool, error) {
	if userID == uuid.Nil {
		return false, errors.New(errors.CodeValidation, "user id is required")
	}
	if period == "" {
		return false, errors.New(errors.CodeValidation, "period is required")
	}
	txn, err := s.repo.FindGrantByPeriod(ctx, userID, period)
	if err != nil {
		return false, err
	}
	return txn != nil, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	txns, err := s.repo.ListTransactions(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Transactions: txns}
	if len(txns) > limit {
		page.Transactions = txns[:limit]
		last := page.Transactions[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) ListGrantCandidates(ctx context.Context, period string, limit int) ([]uuid.UUID, error) {
	return s.repo.ListGrantCandidates(ctx, period, limit)
}
