// Package settlement owns the trade lifecycle: open, outcome resolution and
// the exactly-once transition from active to finished.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"options-core/internal/events"
	"options-core/internal/ledger"
	"options-core/internal/monitor"
	"options-core/internal/oracle"
	"options-core/internal/settings"
	"options-core/pkg/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manual outcome presets. Uppercase to distinguish the admin override from a
// resolved result.
const (
	PresetWin  = "WIN"
	PresetLoss = "LOSS"
)

// ErrNotExpired reports a settlement attempt on a trade whose timer is still
// running.
var ErrNotExpired = errors.New("trade has not expired")

// Stakes and payouts move through the wallet's USDT balance.
const stakeCurrency = "USDT"

// ErrInvalidTrade reports an open request that fails tier validation.
var ErrInvalidTrade = errors.New("invalid trade request")

// Engine resolves outcomes and settles expired trades against the ledger.
type Engine struct {
	database *db.Database
	ledger   *ledger.Ledger
	oracle   oracle.PriceOracle
	settings *settings.Store
	bus      *events.Bus
	metrics  *monitor.SystemMetrics

	// now is swappable in tests.
	now func() time.Time
}

// SetMetrics attaches operational counters; optional.
func (e *Engine) SetMetrics(m *monitor.SystemMetrics) { e.metrics = m }

func NewEngine(database *db.Database, lgr *ledger.Ledger, po oracle.PriceOracle, st *settings.Store, bus *events.Bus) *Engine {
	return &Engine{
		database: database,
		ledger:   lgr,
		oracle:   po,
		settings: st,
		bus:      bus,
		now:      time.Now,
	}
}

// OpenRequest describes a new timed position.
type OpenRequest struct {
	WalletAddress string
	Asset         string
	Side          string
	AmountUSD     decimal.Decimal
	DurationSecs  int64
}

// Open validates the request against the duration tier, debits the stake from
// the available balance and inserts an active trade, all in one transaction.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (*db.Trade, error) {
	if req.Side != db.SideBuy && req.Side != db.SideSell {
		return nil, fmt.Errorf("%w: side %q", ErrInvalidTrade, req.Side)
	}
	if !req.AmountUSD.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive stake", ErrInvalidTrade)
	}

	tier, err := e.database.GetTier(ctx, req.DurationSecs)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, fmt.Errorf("%w: no tier for duration %ds", ErrInvalidTrade, req.DurationSecs)
	}
	if req.AmountUSD.LessThan(tier.MinStakeUSD) {
		return nil, fmt.Errorf("%w: stake %s below minimum %s",
			ErrInvalidTrade, req.AmountUSD, tier.MinStakeUSD)
	}

	// Entry price is read before the transaction opens; a feed outage means
	// the position simply cannot be opened.
	entry, err := e.oracle.Price(ctx, req.Asset)
	if err != nil {
		return nil, err
	}

	now := e.now()
	trade := db.Trade{
		ID:               uuid.NewString(),
		WalletAddress:    req.WalletAddress,
		Asset:            req.Asset,
		Side:             req.Side,
		EntryPrice:       entry,
		AmountUSD:        req.AmountUSD,
		DurationSecs:     req.DurationSecs,
		ProfitMultiplier: tier.ProfitMultiplier,
		Fee:              decimal.Zero,
		Status:           db.TradeStatusActive,
		ExpiresAt:        now.Add(time.Duration(req.DurationSecs) * time.Second),
	}

	err = e.database.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.ledger.Adjust(ctx, tx, req.WalletAddress, stakeCurrency,
			ledger.Delta{Available: req.AmountUSD.Neg()}); err != nil {
			return err
		}
		return db.CreateTrade(ctx, tx, trade)
	})
	if err != nil {
		return nil, err
	}

	e.bus.Publish(events.EventBalanceUpdated, events.BalanceUpdated{
		WalletAddress: req.WalletAddress,
		Currency:      stakeCurrency,
	})

	zap.L().Info("trade opened",
		zap.String("trade_id", trade.ID),
		zap.String("wallet", trade.WalletAddress),
		zap.String("asset", trade.Asset),
		zap.String("side", trade.Side),
		zap.String("stake", trade.AmountUSD.String()),
		zap.Float64("entry", trade.EntryPrice))

	return &trade, nil
}

// SetManualOutcome presets a per-trade WIN/LOSS override. Only allowed while
// the trade is active and unexpired; the preset takes precedence over every
// other resolution branch at settlement time.
func (e *Engine) SetManualOutcome(ctx context.Context, tradeID, outcome, adminID string) error {
	if outcome != PresetWin && outcome != PresetLoss {
		return fmt.Errorf("%w: outcome %q", ErrInvalidTrade, outcome)
	}

	trade, err := e.database.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return db.ErrNotFound
	}

	res, err := e.database.DB.ExecContext(ctx, `
		UPDATE trades
		SET manual_outcome = ?, manual_preset_by = ?, manual_preset_at = ?
		WHERE id = ? AND status = ? AND expires_at > ?`,
		outcome, adminID, e.now(), tradeID, db.TradeStatusActive, e.now())
	if err != nil {
		return fmt.Errorf("preset trade %s: %w", tradeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Raced with expiry or settlement, or the trade was already finished.
		return db.ErrAlreadyProcessed
	}

	zap.L().Info("manual outcome preset",
		zap.String("trade_id", tradeID),
		zap.String("outcome", outcome),
		zap.String("admin", adminID))
	return nil
}

// Settle finalizes one expired active trade. The outcome is resolved first
// (including any oracle read), then a single transaction performs the guarded
// active -> finished transition and the balance credit; events go out only
// after commit. Racing callers beyond the first get db.ErrAlreadyProcessed.
func (e *Engine) Settle(ctx context.Context, tradeID string) (*db.Trade, error) {
	trade, err := e.database.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, db.ErrNotFound
	}
	if trade.Status != db.TradeStatusActive {
		return nil, db.ErrAlreadyProcessed
	}
	now := e.now()
	if trade.ExpiresAt.After(now) {
		return nil, ErrNotExpired
	}
	started := time.Now()

	// The oracle read, when needed, completes before the transaction opens.
	// A failed read leaves the trade active for the next sweep pass.
	outcome, err := e.resolve(ctx, trade)
	if err != nil {
		return nil, err
	}

	var (
		credited bool
		pnl      decimal.Decimal
	)
	if outcome.Result == db.ResultWin {
		gross := trade.AmountUSD.Mul(decimal.NewFromFloat(trade.ProfitMultiplier))
		pnl = gross.Sub(trade.AmountUSD)
		err = e.database.WithTx(ctx, func(tx *sql.Tx) error {
			if err := db.CompareAndTransition(ctx, tx, "trades", trade.ID,
				db.TradeStatusActive, db.TradeStatusFinished,
				db.Set{Column: "result", Value: outcome.Result},
				db.Set{Column: "exit_price", Value: outcome.ExitPrice},
				db.Set{Column: "pnl", Value: pnl.String()},
				db.Set{Column: "closed_at", Value: now},
			); err != nil {
				return err
			}
			_, err := e.ledger.Adjust(ctx, tx, trade.WalletAddress, stakeCurrency, ledger.Delta{
				Available:    gross,
				RealWinnings: pnl,
			})
			return err
		})
		credited = err == nil
	} else {
		// The stake was debited at open; a loss only finalizes the record.
		pnl = trade.AmountUSD.Neg()
		err = e.database.WithTx(ctx, func(tx *sql.Tx) error {
			return db.CompareAndTransition(ctx, tx, "trades", trade.ID,
				db.TradeStatusActive, db.TradeStatusFinished,
				db.Set{Column: "result", Value: outcome.Result},
				db.Set{Column: "exit_price", Value: outcome.ExitPrice},
				db.Set{Column: "pnl", Value: pnl.String()},
				db.Set{Column: "closed_at", Value: now},
			)
		})
	}
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.IncrementSettled()
		e.metrics.SettlementLatency.RecordDuration(time.Since(started))
	}

	e.bus.Publish(events.EventTradeSettled, events.TradeSettled{
		WalletAddress: trade.WalletAddress,
		TradeID:       trade.ID,
		Result:        outcome.Result,
	})
	if credited {
		e.bus.Publish(events.EventBalanceUpdated, events.BalanceUpdated{
			WalletAddress: trade.WalletAddress,
			Currency:      stakeCurrency,
		})
	}

	zap.L().Info("trade settled",
		zap.String("trade_id", trade.ID),
		zap.String("result", outcome.Result),
		zap.Float64("exit", outcome.ExitPrice),
		zap.String("pnl", pnl.String()))

	return e.database.GetTrade(ctx, tradeID)
}

// SettleExpired settles every active trade whose expiry has passed. Safe to
// run concurrently with itself and with on-demand settlement; the per-trade
// guard makes duplicates no-ops. Returns how many trades were finalized.
func (e *Engine) SettleExpired(ctx context.Context) (int, error) {
	if e.metrics != nil {
		e.metrics.IncrementSweeps()
	}
	ids, err := e.database.ListExpiredActiveTradeIDs(ctx, e.now(), 500)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, id := range ids {
		if _, err := e.Settle(ctx, id); err != nil {
			switch {
			case errors.Is(err, db.ErrAlreadyProcessed):
				// Another settler won the race; nothing to do.
			case errors.Is(err, oracle.ErrPriceUnavailable):
				zap.L().Warn("settlement deferred, price unavailable",
					zap.String("trade_id", id))
			default:
				zap.L().Error("settlement failed",
					zap.String("trade_id", id), zap.Error(err))
			}
			continue
		}
		settled++
	}
	return settled, nil
}
