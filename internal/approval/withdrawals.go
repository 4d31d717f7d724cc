// Package approval owns the pending -> approved/rejected review flow for
// withdrawals and deposits. Every transition is guarded by a conditional
// update so duplicate admin submissions are harmless no-ops.
package approval

import (
	"context"
	"database/sql"
	"time"

	"options-core/internal/events"
	"options-core/internal/ledger"
	"options-core/internal/monitor"
	"options-core/pkg/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service wires the review state machine to the ledger and event bus.
type Service struct {
	database *db.Database
	ledger   *ledger.Ledger
	bus      *events.Bus
	metrics  *monitor.SystemMetrics

	// now is swappable in tests.
	now func() time.Time
}

// SetMetrics attaches operational counters; optional.
func (s *Service) SetMetrics(m *monitor.SystemMetrics) { s.metrics = m }

func (s *Service) countApproval() {
	if s.metrics != nil {
		s.metrics.IncrementApprovals()
	}
}

func NewService(database *db.Database, lgr *ledger.Ledger, bus *events.Bus) *Service {
	return &Service{
		database: database,
		ledger:   lgr,
		bus:      bus,
		now:      time.Now,
	}
}

// WithdrawalRequest describes a user's outbound transfer.
type WithdrawalRequest struct {
	WalletAddress      string
	Currency           string
	CryptoAmount       decimal.Decimal
	USDTAmount         decimal.Decimal
	Fee                decimal.Decimal
	DestinationAddress string
}

// RequestWithdrawal reserves funds and records the pending withdrawal in one
// transaction: amount plus fee move from available to frozen, and the
// principal is earmarked out of realBalance, so a later reject can restore
// the exact pre-request state.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*db.Withdrawal, error) {
	w := db.Withdrawal{
		ID:                 uuid.NewString(),
		WalletAddress:      req.WalletAddress,
		Currency:           req.Currency,
		CryptoAmount:       req.CryptoAmount,
		USDTAmount:         req.USDTAmount,
		Fee:                req.Fee,
		Status:             db.ReviewPending,
		DestinationAddress: req.DestinationAddress,
	}
	total := req.CryptoAmount.Add(req.Fee)

	err := s.database.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.ledger.Adjust(ctx, tx, req.WalletAddress, req.Currency, ledger.Delta{
			Available:   total.Neg(),
			Frozen:      total,
			RealBalance: req.CryptoAmount.Neg(),
		}); err != nil {
			return err
		}
		return db.CreateWithdrawal(ctx, tx, w)
	})
	if err != nil {
		return nil, err
	}

	s.publishWithdrawal(w.ID, db.ReviewPending, req.WalletAddress, req.Currency)

	zap.L().Info("withdrawal requested",
		zap.String("withdrawal_id", w.ID),
		zap.String("wallet", w.WalletAddress),
		zap.String("amount", w.CryptoAmount.String()),
		zap.String("currency", w.Currency))

	return &w, nil
}

// ApproveWithdrawal finalizes a pending withdrawal: the frozen reservation
// leaves the system and the transfer hash is recorded. A second approval (or
// a rejection racing it) observes zero affected rows and changes nothing.
func (s *Service) ApproveWithdrawal(ctx context.Context, id, txHash, notes string) (*db.Withdrawal, error) {
	w, err := s.database.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, db.ErrNotFound
	}
	total := w.CryptoAmount.Add(w.Fee)

	err = s.database.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.CompareAndTransition(ctx, tx, "withdrawals", id,
			db.ReviewPending, db.ReviewApproved,
			db.Set{Column: "tx_hash", Value: txHash},
			db.Set{Column: "admin_notes", Value: notes},
			db.Set{Column: "processed_at", Value: s.now()},
		); err != nil {
			return err
		}
		_, err := s.ledger.Adjust(ctx, tx, w.WalletAddress, w.Currency,
			ledger.Delta{Frozen: total.Neg()})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.countApproval()
	s.publishWithdrawal(id, db.ReviewApproved, w.WalletAddress, w.Currency)

	zap.L().Info("withdrawal approved",
		zap.String("withdrawal_id", id),
		zap.String("tx_hash", txHash))

	return s.database.GetWithdrawal(ctx, id)
}

// RejectWithdrawal returns the reservation to the user, restoring available,
// frozen and realBalance to their exact pre-request values.
func (s *Service) RejectWithdrawal(ctx context.Context, id, notes string) (*db.Withdrawal, error) {
	w, err := s.database.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, db.ErrNotFound
	}
	total := w.CryptoAmount.Add(w.Fee)

	err = s.database.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.CompareAndTransition(ctx, tx, "withdrawals", id,
			db.ReviewPending, db.ReviewRejected,
			db.Set{Column: "admin_notes", Value: notes},
			db.Set{Column: "rejected_at", Value: s.now()},
		); err != nil {
			return err
		}
		_, err := s.ledger.Adjust(ctx, tx, w.WalletAddress, w.Currency, ledger.Delta{
			Available:   total,
			Frozen:      total.Neg(),
			RealBalance: w.CryptoAmount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.countApproval()
	s.publishWithdrawal(id, db.ReviewRejected, w.WalletAddress, w.Currency)

	zap.L().Info("withdrawal rejected", zap.String("withdrawal_id", id))

	return s.database.GetWithdrawal(ctx, id)
}

func (s *Service) publishWithdrawal(id, status, wallet, currency string) {
	s.bus.Publish(events.EventWithdrawalUpdated, events.ReviewUpdated{ID: id, Status: status})
	s.bus.Publish(events.EventBalanceUpdated, events.BalanceUpdated{
		WalletAddress: wallet,
		Currency:      currency,
	})
}
