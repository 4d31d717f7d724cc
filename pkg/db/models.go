package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Trade lifecycle states. A trade moves active -> finished exactly once;
// there is no cancelled state.
const (
	TradeStatusActive   = "active"
	TradeStatusFinished = "finished"
)

// Trade outcomes.
const (
	ResultWin  = "win"
	ResultLoss = "loss"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Review states shared by withdrawals and deposits.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// Balance is the per-wallet, per-currency ledger row. Amounts are stored as
// decimal strings; version increments on every mutation.
type Balance struct {
	WalletAddress string
	Currency      string
	Available     decimal.Decimal
	Frozen        decimal.Decimal
	RealBalance   decimal.Decimal
	RealWinnings  decimal.Decimal
	Version       int64
	UpdatedAt     time.Time
}

// Trade is a timed binary-options position.
type Trade struct {
	ID               string
	WalletAddress    string
	Asset            string
	Side             string
	EntryPrice       float64
	AmountUSD        decimal.Decimal
	DurationSecs     int64
	ProfitMultiplier float64
	Fee              decimal.Decimal
	Status           string
	Result           sql.NullString
	ExitPrice        sql.NullFloat64
	PnL              decimal.NullDecimal
	ManualOutcome    sql.NullString
	ManualPresetBy   sql.NullString
	ManualPresetAt   sql.NullTime
	CreatedAt        time.Time
	ExpiresAt        time.Time
	ClosedAt         sql.NullTime
}

// Withdrawal is a pending-review outbound transfer with funds already frozen.
type Withdrawal struct {
	ID                 string
	WalletAddress      string
	Currency           string
	CryptoAmount       decimal.Decimal
	USDTAmount         decimal.Decimal
	Fee                decimal.Decimal
	Status             string
	DestinationAddress string
	TxHash             sql.NullString
	AdminNotes         sql.NullString
	CreatedAt          time.Time
	ProcessedAt        sql.NullTime
	RejectedAt         sql.NullTime
}

// Deposit is a user-submitted inbound transfer awaiting verification.
type Deposit struct {
	ID             string
	WalletAddress  string
	Currency       string
	CryptoAmount   decimal.Decimal
	USDTAmount     decimal.Decimal
	ConversionRate float64
	TxHash         string
	Status         string
	AdminNotes     sql.NullString
	CreatedAt      time.Time
	ProcessedAt    sql.NullTime
}

// AssetTier maps a trade duration to its payout ratio and minimum stake.
type AssetTier struct {
	DurationSecs     int64
	ProfitMultiplier float64
	MinStakeUSD      decimal.Decimal
}

// User is an application account; Role gates admin actions.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	WalletAddress string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, wallet_address)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.WalletAddress)
	return err
}

// UpsertTier stores the payout tier for a duration.
func (d *Database) UpsertTier(ctx context.Context, t AssetTier) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO asset_tiers (duration_secs, profit_multiplier, min_stake_usd)
		VALUES (?, ?, ?)
		ON CONFLICT(duration_secs) DO UPDATE SET
			profit_multiplier = excluded.profit_multiplier,
			min_stake_usd = excluded.min_stake_usd
	`, t.DurationSecs, t.ProfitMultiplier, t.MinStakeUSD.String())
	return err
}

// CreateWithdrawal inserts a pending withdrawal row inside tx. Funds must
// already be frozen by the same transaction.
func CreateWithdrawal(ctx context.Context, tx *sql.Tx, w Withdrawal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO withdrawals (
			id, wallet_address, currency, crypto_amount, usdt_amount, fee,
			status, destination_address
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.WalletAddress, w.Currency, w.CryptoAmount.String(),
		w.USDTAmount.String(), w.Fee.String(), ReviewPending, w.DestinationAddress)
	return err
}

// CreateDeposit inserts a pending deposit row.
func (d *Database) CreateDeposit(ctx context.Context, dep Deposit) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO deposits (
			id, wallet_address, currency, crypto_amount, usdt_amount,
			conversion_rate, tx_hash, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, dep.ID, dep.WalletAddress, dep.Currency, dep.CryptoAmount.String(),
		dep.USDTAmount.String(), dep.ConversionRate, dep.TxHash, ReviewPending)
	return err
}

// CreateTrade inserts an active trade row inside tx. The stake must be
// debited by the same transaction.
func CreateTrade(ctx context.Context, tx *sql.Tx, t Trade) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trades (
			id, wallet_address, asset, side, entry_price, amount_usd,
			duration_secs, profit_multiplier, fee, status, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.WalletAddress, t.Asset, t.Side, t.EntryPrice, t.AmountUSD.String(),
		t.DurationSecs, t.ProfitMultiplier, t.Fee.String(), TradeStatusActive, t.ExpiresAt)
	return err
}
