package usage

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/pkg/db"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

func setupUsageTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS credit_accounts (
  user_id TEXT PRIMARY KEY,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS credit_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  delta INTEGER NOT NULL,
  reason TEXT NOT NULL,
  grant_period TEXT,
  metadata TEXT,
  created_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_credit_tx_user_period
  ON credit_transactions (user_id, grant_period)
  WHERE grant_period IS NOT NULL;`,
		`CREATE TABLE IF NOT EXISTS usage_events (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  cost INTEGER NOT NULL,
  tokens INTEGER,
  request_id TEXT,
  transaction_id TEXT,
  balance_after INTEGER NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_usage_events_user_request
  ON usage_events (user_id, request_id)
  WHERE request_id IS NOT NULL;`,
	}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type captureSink struct {
	rows []any
	err  error
}

func (c *captureSink) InsertUsageRows(ctx context.Context, rows []any) error {
	c.rows = append(c.rows, rows...)
	return c.err
}

func setupUsageService(t *testing.T, sink AnalyticsSink) (Service, ledger.Service, *gorm.DB) {
	t.Helper()

	conn := setupUsageTestDB(t)
	client := db.FromConn(conn)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Client: client,
		Repo:   ledger.NewRepository(conn),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Client:    client,
		Repo:      NewRepository(conn),
		Ledger:    ledgerSvc,
		Analytics: sink,
	})
	require.NoError(t, err)
	return svc, ledgerSvc, conn
}

func fundAccount(t *testing.T, ledgerSvc ledger.Service, userID uuid.UUID, amount int64) {
	t.Helper()
	_, err := ledgerSvc.Grant(context.Background(), ledger.GrantInput{
		UserID: userID,
		Amount: amount,
		Reason: enums.CreditReasonManualGrant,
	})
	require.NoError(t, err)
}

func TestRecordChargesAndWritesEvent(t *testing.T) {
	sink := &captureSink{}
	svc, ledgerSvc, conn := setupUsageService(t, sink)
	ctx := context.Background()
	userID := uuid.New()
	fundAccount(t, ledgerSvc, userID, 100)

	tokens := int64(420)
	result, err := svc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      5,
		Tokens:    &tokens,
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.False(t, result.WasDuplicate)
	assert.Equal(t, int64(95), result.NewBalance)
	assert.NotEqual(t, uuid.Nil, result.EventID)

	balance, err := ledgerSvc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(95), balance)

	var event models.UsageEvent
	require.NoError(t, conn.Where("id = ?", result.EventID).First(&event).Error)
	assert.Equal(t, "image_generation", event.EventType)
	require.NotNil(t, event.TransactionID)
	assert.Equal(t, int64(95), event.BalanceAfter)

	require.Len(t, sink.rows, 1)
}

func TestRecordReplaySameRequestID(t *testing.T) {
	svc, ledgerSvc, _ := setupUsageService(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	fundAccount(t, ledgerSvc, userID, 50)

	first, err := svc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      10,
		RequestID: "req-replay",
	})
	require.NoError(t, err)

	second, err := svc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      10,
		RequestID: "req-replay",
	})
	require.NoError(t, err)

	assert.True(t, second.WasDuplicate)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, first.NewBalance, second.NewBalance)

	// No second charge happened.
	balance, err := ledgerSvc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)
}

// racingRepo simulates losing a duplicate race: the first FindByRequestID
// (the pre-check) reports nothing even though the winner's event is already
// committed; every later call hits the real table.
type racingRepo struct {
	Repository
	finds int
}

func (r *racingRepo) FindByRequestID(ctx context.Context, userID uuid.UUID, requestID string) (*models.UsageEvent, error) {
	r.finds++
	if r.finds == 1 {
		return nil, nil
	}
	return r.Repository.FindByRequestID(ctx, userID, requestID)
}

func setupRacingService(t *testing.T) (Service, ledger.Service, *gorm.DB) {
	t.Helper()

	conn := setupUsageTestDB(t)
	client := db.FromConn(conn)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Client: client,
		Repo:   ledger.NewRepository(conn),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Client: client,
		Repo:   &racingRepo{Repository: NewRepository(conn)},
		Ledger: ledgerSvc,
	})
	require.NoError(t, err)
	return svc, ledgerSvc, conn
}

func TestRecordDuplicateRaceAtExactBalance(t *testing.T) {
	svc, ledgerSvc, conn := setupRacingService(t)
	ctx := context.Background()
	userID := uuid.New()
	fundAccount(t, ledgerSvc, userID, 2)

	winnerSvc, err := NewService(ServiceParams{
		Client: db.FromConn(conn),
		Repo:   NewRepository(conn),
		Ledger: ledgerSvc,
	})
	require.NoError(t, err)

	winner, err := winnerSvc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      2,
		RequestID: "req-race",
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), winner.NewBalance)

	// The loser's pre-check misses the committed winner, so its charge runs
	// against a drained balance. It must still get the winner's result back.
	loser, err := svc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      2,
		RequestID: "req-race",
	})
	require.NoError(t, err)
	assert.True(t, loser.WasDuplicate)
	assert.Equal(t, winner.EventID, loser.EventID)
	assert.Equal(t, int64(0), loser.NewBalance)

	balance, err := ledgerSvc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestRecordDuplicateRaceHitsUniqueIndex(t *testing.T) {
	svc, ledgerSvc, conn := setupRacingService(t)
	ctx := context.Background()
	userID := uuid.New()
	fundAccount(t, ledgerSvc, userID, 10)

	winnerSvc, err := NewService(ServiceParams{
		Client: db.FromConn(conn),
		Repo:   NewRepository(conn),
		Ledger: ledgerSvc,
	})
	require.NoError(t, err)

	winner, err := winnerSvc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      2,
		RequestID: "req-conflict",
	})
	require.NoError(t, err)

	// Enough balance remains that the loser's charge succeeds inside its
	// transaction; the unique index on (user, request id) must fire on the
	// event insert and the whole charge roll back.
	loser, err := svc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      2,
		RequestID: "req-conflict",
	})
	require.NoError(t, err)
	assert.True(t, loser.WasDuplicate)
	assert.Equal(t, winner.EventID, loser.EventID)
	assert.Equal(t, winner.NewBalance, loser.NewBalance)

	balance, err := ledgerSvc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), balance)

	var count int64
	require.NoError(t, conn.Model(&models.UsageEvent{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordInsufficientWritesNothing(t *testing.T) {
	svc, ledgerSvc, conn := setupUsageService(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	fundAccount(t, ledgerSvc, userID, 3)

	_, err := svc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      5,
		RequestID: "req-poor",
	})
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientCredits), "got %v", err)

	balance, err := ledgerSvc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)

	var count int64
	require.NoError(t, conn.Model(&models.UsageEvent{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRecordValidation(t *testing.T) {
	svc, _, _ := setupUsageService(t, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{UserID: uuid.New(), EventType: "", Cost: 5})
	assert.True(t, errors.HasCode(err, errors.CodeValidation), "got %v", err)

	for _, cost := range []int64{0, -1} {
		_, err := svc.Record(ctx, RecordInput{UserID: uuid.New(), EventType: "gen", Cost: cost})
		assert.True(t, errors.HasCode(err, errors.CodeInvalidAmount), "cost %d: got %v", cost, err)
	}
}

func TestRecordWithoutRequestIDChargesEachTime(t *testing.T) {
	svc, ledgerSvc, _ := setupUsageService(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	fundAccount(t, ledgerSvc, userID, 20)

	for i := 0; i < 2; i++ {
		_, err := svc.Record(ctx, RecordInput{
			UserID:    userID,
			EventType: "image_generation",
			Cost:      5,
		})
		require.NoError(t, err)
	}

	balance, err := ledgerSvc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestRecordAnalyticsFailureIsNonFatal(t *testing.T) {
	sink := &captureSink{err: fmt.Errorf("bigquery unavailable")}
	svc, ledgerSvc, _ := setupUsageService(t, sink)
	ctx := context.Background()
	userID := uuid.New()
	fundAccount(t, ledgerSvc, userID, 10)

	result, err := svc.Record(ctx, RecordInput{
		UserID:    userID,
		EventType: "image_generation",
		Cost:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), result.NewBalance)
}

func TestListByUserPaginates(t *testing.T) {
	svc, ledgerSvc, _ := setupUsageService(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	fundAccount(t, ledgerSvc, userID, 100)

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, RecordInput{
			UserID:    userID,
			EventType: "image_generation",
			Cost:      1,
			RequestID: fmt.Sprintf("req-%d", i),
		})
		require.NoError(t, err)
	}

	page, err := svc.ListByUser(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Events, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.ListByUser(ctx, userID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.Events, 1)
	assert.Empty(t, next.NextCursor)
}
