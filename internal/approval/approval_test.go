package approval

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"options-core/internal/events"
	"options-core/internal/ledger"
	"options-core/pkg/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	database *db.Database
	ledger   *ledger.Ledger
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))

	lgr := ledger.New(database)
	return &fixture{
		database: database,
		ledger:   lgr,
		service:  NewService(database, lgr, events.NewBus()),
	}
}

func (f *fixture) fund(t *testing.T, wallet, currency, amount string) {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	err := f.database.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := f.ledger.Adjust(context.Background(), tx, wallet, currency,
			ledger.Delta{Available: amt, RealBalance: amt})
		return err
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, wallet, currency string) db.Balance {
	t.Helper()
	b, err := f.ledger.Get(context.Background(), wallet, currency)
	require.NoError(t, err)
	return b
}

func TestRequestWithdrawalFreezesAmountPlusFee(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "0xabc", "USDT", "500")

	w, err := f.service.RequestWithdrawal(context.Background(), WithdrawalRequest{
		WalletAddress:      "0xabc",
		Currency:           "USDT",
		CryptoAmount:       decimal.RequireFromString("100"),
		USDTAmount:         decimal.RequireFromString("100"),
		Fee:                decimal.RequireFromString("2"),
		DestinationAddress: "0xdest",
	})
	require.NoError(t, err)
	assert.Equal(t, db.ReviewPending, w.Status)

	b := f.balance(t, "0xabc", "USDT")
	assert.Equal(t, "398", b.Available.String())
	assert.Equal(t, "102", b.Frozen.String())
	assert.Equal(t, "400", b.RealBalance.String())
}

func TestRequestWithdrawalInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "0xabc", "USDT", "50")

	_, err := f.service.RequestWithdrawal(context.Background(), WithdrawalRequest{
		WalletAddress:      "0xabc",
		Currency:           "USDT",
		CryptoAmount:       decimal.RequireFromString("100"),
		USDTAmount:         decimal.RequireFromString("100"),
		Fee:                decimal.RequireFromString("2"),
		DestinationAddress: "0xdest",
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// The failed request leaves no withdrawal row and no balance change.
	ws, err := f.database.ListWithdrawalsByStatus(context.Background(), db.ReviewPending, 10)
	require.NoError(t, err)
	assert.Empty(t, ws)
	b := f.balance(t, "0xabc", "USDT")
	assert.Equal(t, "50", b.Available.String())
	assert.True(t, b.Frozen.IsZero())
}

func TestApproveWithdrawalReleasesFrozen(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "0xabc", "USDT", "500")

	w, err := f.service.RequestWithdrawal(context.Background(), WithdrawalRequest{
		WalletAddress:      "0xabc",
		Currency:           "USDT",
		CryptoAmount:       decimal.RequireFromString("100"),
		USDTAmount:         decimal.RequireFromString("100"),
		Fee:                decimal.RequireFromString("2"),
		DestinationAddress: "0xdest",
	})
	require.NoError(t, err)

	approved, err := f.service.ApproveWithdrawal(context.Background(), w.ID, "0xhash", "ok")
	require.NoError(t, err)
	assert.Equal(t, db.ReviewApproved, approved.Status)
	assert.Equal(t, "0xhash", approved.TxHash.String)

	b := f.balance(t, "0xabc", "USDT")
	assert.Equal(t, "398", b.Available.String())
	assert.True(t, b.Frozen.IsZero())
	assert.Equal(t, "400", b.RealBalance.String())
}

func TestApproveWithdrawalIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "0xabc", "USDT", "500")

	w, err := f.service.RequestWithdrawal(context.Background(), WithdrawalRequest{
		WalletAddress:      "0xabc",
		Currency:           "USDT",
		CryptoAmount:       decimal.RequireFromString("100"),
		USDTAmount:         decimal.RequireFromString("100"),
		Fee:                decimal.Zero,
		DestinationAddress: "0xdest",
	})
	require.NoError(t, err)

	_, err = f.service.ApproveWithdrawal(context.Background(), w.ID, "0xhash", "")
	require.NoError(t, err)

	_, err = f.service.ApproveWithdrawal(context.Background(), w.ID, "0xhash2", "")
	require.ErrorIs(t, err, db.ErrAlreadyProcessed)

	// Frozen was released exactly once.
	b := f.balance(t, "0xabc", "USDT")
	assert.True(t, b.Frozen.IsZero())
	assert.Equal(t, "400", b.Available.String())
}

func TestConcurrentApproveSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "0xabc", "USDT", "500")

	w, err := f.service.RequestWithdrawal(context.Background(), WithdrawalRequest{
		WalletAddress:      "0xabc",
		Currency:           "USDT",
		CryptoAmount:       decimal.RequireFromString("100"),
		USDTAmount:         decimal.RequireFromString("100"),
		Fee:                decimal.Zero,
		DestinationAddress: "0xdest",
	})
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.ApproveWithdrawal(context.Background(), w.ID, "0xhash", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, db.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, wins)

	b := f.balance(t, "0xabc", "USDT")
	assert.True(t, b.Frozen.IsZero())
}

func TestRejectWithdrawalRestoresExactState(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "0xabc", "USDT", "500")
	before := f.balance(t, "0xabc", "USDT")

	w, err := f.service.RequestWithdrawal(context.Background(), WithdrawalRequest{
		WalletAddress:      "0xabc",
		Currency:           "USDT",
		CryptoAmount:       decimal.RequireFromString("100"),
		USDTAmount:         decimal.RequireFromString("100"),
		Fee:                decimal.RequireFromString("2"),
		DestinationAddress: "0xdest",
	})
	require.NoError(t, err)

	rejected, err := f.service.RejectWithdrawal(context.Background(), w.ID, "suspicious")
	require.NoError(t, err)
	assert.Equal(t, db.ReviewRejected, rejected.Status)
	assert.True(t, rejected.RejectedAt.Valid)

	after := f.balance(t, "0xabc", "USDT")
	assert.True(t, before.Available.Equal(after.Available))
	assert.True(t, before.Frozen.Equal(after.Frozen))
	assert.True(t, before.RealBalance.Equal(after.RealBalance))
}

func TestRejectAfterApproveIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "0xabc", "USDT", "500")

	w, err := f.service.RequestWithdrawal(context.Background(), WithdrawalRequest{
		WalletAddress:      "0xabc",
		Currency:           "USDT",
		CryptoAmount:       decimal.RequireFromString("100"),
		USDTAmount:         decimal.RequireFromString("100"),
		Fee:                decimal.Zero,
		DestinationAddress: "0xdest",
	})
	require.NoError(t, err)

	_, err = f.service.ApproveWithdrawal(context.Background(), w.ID, "0xhash", "")
	require.NoError(t, err)

	_, err = f.service.RejectWithdrawal(context.Background(), w.ID, "late")
	require.ErrorIs(t, err, db.ErrAlreadyProcessed)

	// No refund happened for the losing rejection.
	b := f.balance(t, "0xabc", "USDT")
	assert.Equal(t, "400", b.Available.String())
}

func TestSubmitDepositTouchesNoBalance(t *testing.T) {
	f := newFixture(t)

	dep, err := f.service.SubmitDeposit(context.Background(), DepositRequest{
		WalletAddress:  "0xabc",
		Currency:       "BTC",
		CryptoAmount:   decimal.RequireFromString("0.01"),
		ConversionRate: 50000,
		TxHash:         "0xdeadbeef",
	})
	require.NoError(t, err)
	assert.Equal(t, db.ReviewPending, dep.Status)
	assert.Equal(t, "500", dep.USDTAmount.String())

	b := f.balance(t, "0xabc", "USDT")
	assert.True(t, b.Available.IsZero())
}

func TestApproveDepositCreditsUSDT(t *testing.T) {
	f := newFixture(t)

	dep, err := f.service.SubmitDeposit(context.Background(), DepositRequest{
		WalletAddress:  "0xabc",
		Currency:       "BTC",
		CryptoAmount:   decimal.RequireFromString("0.01"),
		ConversionRate: 50000,
		TxHash:         "0xdeadbeef",
	})
	require.NoError(t, err)

	approved, err := f.service.ApproveDeposit(context.Background(), dep.ID, "verified")
	require.NoError(t, err)
	assert.Equal(t, db.ReviewApproved, approved.Status)

	b := f.balance(t, "0xabc", "USDT")
	assert.Equal(t, "500", b.Available.String())
	assert.Equal(t, "500", b.RealBalance.String())

	// Double approval credits nothing further.
	_, err = f.service.ApproveDeposit(context.Background(), dep.ID, "again")
	require.ErrorIs(t, err, db.ErrAlreadyProcessed)
	b = f.balance(t, "0xabc", "USDT")
	assert.Equal(t, "500", b.Available.String())
}

func TestRejectDepositLeavesBalanceUntouched(t *testing.T) {
	f := newFixture(t)

	dep, err := f.service.SubmitDeposit(context.Background(), DepositRequest{
		WalletAddress:  "0xabc",
		Currency:       "BTC",
		CryptoAmount:   decimal.RequireFromString("0.01"),
		ConversionRate: 50000,
		TxHash:         "0xdeadbeef",
	})
	require.NoError(t, err)

	rejected, err := f.service.RejectDeposit(context.Background(), dep.ID, "hash not found on chain")
	require.NoError(t, err)
	assert.Equal(t, db.ReviewRejected, rejected.Status)

	b := f.balance(t, "0xabc", "USDT")
	assert.True(t, b.Available.IsZero())
}

func TestReviewUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ApproveWithdrawal(context.Background(), "missing", "", "")
	require.ErrorIs(t, err, db.ErrNotFound)
	_, err = f.service.RejectDeposit(context.Background(), "missing", "")
	require.ErrorIs(t, err, db.ErrNotFound)
}
