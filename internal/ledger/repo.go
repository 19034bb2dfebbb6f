package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

// Repository manages persistence for credit accounts and their transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureAccount(ctx context.Context, userID uuid.UUID) error
	LockAccount(ctx context.Context, userID uuid.UUID) error
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	CreateTransaction(ctx context.Context, txn *models.CreditTransaction) error
	FindGrantByPeriod(ctx context.Context, userID uuid.UUID, period string) (*models.CreditTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.CreditTransaction, error)
	ListGrantCandidates(ctx context.Context, period string, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureAccount creates the anchor row for the account if it does not exist.
func (r *repository) EnsureAccount(ctx context.Context, userID uuid.UUID) error {
	account := models.CreditAccount{UserID: userID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account).Error
}

// LockAccount takes the account's row lock for the duration of the enclosing
// transaction. All balance-changing writes for one account go through this,
// so concurrent charges serialize instead of double-spending.
func (r *repository) LockAccount(ctx context.Context, userID uuid.UUID) error {
	query := r.db.WithContext(ctx)
	// sqlite (tests) has no FOR UPDATE; its single-writer model already
	// serializes transactions.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account models.CreditAccount
	return query.Where("user_id = ?", userID).First(&account).Error
}

func (r *repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindGrantByPeriod(ctx context.Context, userID uuid.UUID, period string) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND reason = ? AND grant_period = ?", userID, enums.CreditReasonMonthlyGrant, period).
		First(&txn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.CreditTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var txns []models.CreditTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListGrantCandidates returns the accounts a grant run for the period still
// has to visit: every user known to the ledger or the subscription mirror,
// minus those already holding a monthly grant for the period. Accounts whose
// only trace is a subscription row (no ledger history yet) are included, and
// already-granted accounts never consume the batch limit.
func (r *repository) ListGrantCandidates(ctx context.Context, period string, limit int) ([]uuid.UUID, error) {
	query := `
SELECT user_id FROM (
	SELECT user_id, MIN(created_at) AS first_seen FROM (
		SELECT user_id, created_at FROM credit_accounts
		UNION ALL
		SELECT user_id, created_at FROM subscription_records
	) seen
	GROUP BY user_id
) accounts
WHERE user_id NOT IN (
	SELECT user_id FROM credit_transactions
	WHERE reason = ? AND grant_period = ?
)
ORDER BY first_seen ASC, user_id ASC`
	args := []any{enums.CreditReasonMonthlyGrant, period}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
