package settlement

import (
	"context"
	"fmt"

	"options-core/internal/settings"
	"options-core/pkg/db"
)

// Fallback synthetic move (percent) for forced outcomes when the custom-mode
// knobs are unset.
const defaultSyntheticMovePct = 0.5

// Outcome is a resolved settlement decision: the result to record and the
// exit price that justifies it on screen.
type Outcome struct {
	Result    string
	ExitPrice float64
}

// resolve picks the trade's outcome at settlement time, in strict precedence:
//
//  1. manual per-trade preset
//  2. global win/loss mode
//  3. global custom mode (forced loss, synthetic exit price)
//  4. live market comparison (tie counts as a loss)
//
// Only branch 4 consults the oracle, so forced outcomes settle even during a
// feed outage and their displayed move always matches the recorded result.
func (e *Engine) resolve(ctx context.Context, trade *db.Trade) (Outcome, error) {
	ts, err := e.settings.Get(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("read trade settings: %w", err)
	}

	if trade.ManualOutcome.Valid {
		switch trade.ManualOutcome.String {
		case PresetWin:
			return Outcome{Result: db.ResultWin, ExitPrice: e.syntheticExit(trade, ts, db.ResultWin)}, nil
		case PresetLoss:
			return Outcome{Result: db.ResultLoss, ExitPrice: e.syntheticExit(trade, ts, db.ResultLoss)}, nil
		}
	}

	switch ts.Mode {
	case settings.ModeWin:
		return Outcome{Result: db.ResultWin, ExitPrice: e.syntheticExit(trade, ts, db.ResultWin)}, nil
	case settings.ModeLoss:
		return Outcome{Result: db.ResultLoss, ExitPrice: e.syntheticExit(trade, ts, db.ResultLoss)}, nil
	case settings.ModeCustom:
		// Custom mode forces a loss dressed as a plausible market move of the
		// configured size; the live market price is never read.
		return Outcome{Result: db.ResultLoss, ExitPrice: e.syntheticExit(trade, ts, db.ResultLoss)}, nil
	}

	exit, err := e.oracle.Price(ctx, trade.Asset)
	if err != nil {
		return Outcome{}, err
	}

	won := false
	switch trade.Side {
	case db.SideBuy:
		won = exit > trade.EntryPrice
	case db.SideSell:
		won = exit < trade.EntryPrice
	}
	// An exit exactly at entry is a loss; there is no push state.
	result := db.ResultLoss
	if won {
		result = db.ResultWin
	}
	return Outcome{Result: result, ExitPrice: exit}, nil
}

// syntheticExit moves the entry price by the configured percentage in
// whichever direction makes the forced result look market-driven: favorable
// for the trade's side on a win, adverse on a loss.
func (e *Engine) syntheticExit(trade *db.Trade, ts settings.TradeSettings, result string) float64 {
	pct := ts.LossPercent
	if result == db.ResultWin {
		pct = ts.WinPercent
	}
	if pct <= 0 {
		pct = defaultSyntheticMovePct
	}
	move := trade.EntryPrice * pct / 100

	up := result == db.ResultWin
	if trade.Side == db.SideSell {
		up = !up
	}
	if up {
		return trade.EntryPrice + move
	}
	return trade.EntryPrice - move
}
