package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-ai/lumora-backend/pkg/db"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

func setupLedgerService(t *testing.T) Service {
	t.Helper()

	conn := setupLedgerTestDB(t)
	svc, err := NewService(ServiceParams{
		Client: db.FromConn(conn),
		Repo:   NewRepository(conn),
	})
	require.NoError(t, err)
	return svc
}

func TestServiceGrantAndBalance(t *testing.T) {
	svc := setupLedgerService(t)
	ctx := context.Background()
	userID := uuid.New()

	result, err := svc.Grant(ctx, GrantInput{
		UserID: userID,
		Amount: 200,
		Reason: enums.CreditReasonManualGrant,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), result.NewBalance)
	assert.Equal(t, int64(200), result.Transaction.Delta)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)
}

func TestServiceGrantRejectsNonPositiveAmount(t *testing.T) {
	svc := setupLedgerService(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -10} {
		_, err := svc.Grant(ctx, GrantInput{
			UserID: uuid.New(),
			Amount: amount,
			Reason: enums.CreditReasonManualGrant,
		})
		assert.True(t, errors.HasCode(err, errors.CodeInvalidAmount), "amount %d: got %v", amount, err)
	}
}

func TestServiceGrantDuplicatePeriodConflicts(t *testing.T) {
	svc := setupLedgerService(t)
	ctx := context.Background()
	userID := uuid.New()
	period := "2026-08"

	_, err := svc.Grant(ctx, GrantInput{
		UserID:      userID,
		Amount:      500,
		Reason:      enums.CreditReasonMonthlyGrant,
		GrantPeriod: &period,
	})
	require.NoError(t, err)

	_, err = svc.Grant(ctx, GrantInput{
		UserID:      userID,
		Amount:      500,
		Reason:      enums.CreditReasonMonthlyGrant,
		GrantPeriod: &period,
	})
	assert.True(t, errors.HasCode(err, errors.CodeConflict), "got %v", err)

	// The failed grant must not have changed the balance.
	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}

func TestServiceConsumeNeverGoesNegative(t *testing.T) {
	svc := setupLedgerService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Grant(ctx, GrantInput{
		UserID: userID,
		Amount: 5,
		Reason: enums.CreditReasonManualGrant,
	})
	require.NoError(t, err)

	first, err := svc.Consume(ctx, ConsumeInput{
		UserID: userID,
		Amount: 3,
		Reason: enums.CreditReasonUsageCharge,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.NewBalance)

	_, err = svc.Consume(ctx, ConsumeInput{
		UserID: userID,
		Amount: 3,
		Reason: enums.CreditReasonUsageCharge,
	})
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientCredits), "got %v", err)

	// Failed consume writes nothing.
	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)
}

func TestServiceConsumeExactBalanceToZero(t *testing.T) {
	svc := setupLedgerService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Grant(ctx, GrantInput{
		UserID: userID,
		Amount: 10,
		Reason: enums.CreditReasonManualGrant,
	})
	require.NoError(t, err)

	result, err := svc.Consume(ctx, ConsumeInput{
		UserID: userID,
		Amount: 10,
		Reason: enums.CreditReasonUsageCharge,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.NewBalance)
}

func TestServiceConsumeRejectsNonPositiveAmount(t *testing.T) {
	svc := setupLedgerService(t)
	ctx := context.Background()

	_, err := svc.Consume(ctx, ConsumeInput{
		UserID: uuid.New(),
		Amount: 0,
		Reason: enums.CreditReasonUsageCharge,
	})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidAmount), "got %v", err)
}

func TestServiceGetBalanceForUnknownAccountIsZero(t *testing.T) {
	svc := setupLedgerService(t)

	balance, err := svc.GetBalance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestServiceHistoryReturnsNextCursor(t *testing.T) {
	svc := setupLedgerService(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.Grant(ctx, GrantInput{
			UserID: userID,
			Amount: int64(10 * (i + 1)),
			Reason: enums.CreditReasonManualGrant,
		})
		require.NoError(t, err)
	}

	page, err := svc.History(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.History(ctx, userID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.Transactions, 1)
	assert.Empty(t, next.NextCursor)
}
