package approval

import (
	"context"
	"database/sql"

	"options-core/internal/events"
	"options-core/internal/ledger"
	"options-core/pkg/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DepositRequest is a user-submitted transfer hash awaiting verification.
type DepositRequest struct {
	WalletAddress  string
	Currency       string
	CryptoAmount   decimal.Decimal
	ConversionRate float64
	TxHash         string
}

// SubmitDeposit records a pending deposit. No balance is touched until an
// admin verifies the transfer on chain.
func (s *Service) SubmitDeposit(ctx context.Context, req DepositRequest) (*db.Deposit, error) {
	usdt := req.CryptoAmount.Mul(decimal.NewFromFloat(req.ConversionRate))
	dep := db.Deposit{
		ID:             uuid.NewString(),
		WalletAddress:  req.WalletAddress,
		Currency:       req.Currency,
		CryptoAmount:   req.CryptoAmount,
		USDTAmount:     usdt,
		ConversionRate: req.ConversionRate,
		TxHash:         req.TxHash,
		Status:         db.ReviewPending,
	}
	if err := s.database.CreateDeposit(ctx, dep); err != nil {
		return nil, err
	}

	s.bus.Publish(events.EventDepositUpdated, events.ReviewUpdated{
		ID:     dep.ID,
		Status: db.ReviewPending,
	})

	zap.L().Info("deposit submitted",
		zap.String("deposit_id", dep.ID),
		zap.String("wallet", dep.WalletAddress),
		zap.String("tx_hash", dep.TxHash))

	return &dep, nil
}

// ApproveDeposit credits the verified amount to the user's USDT balance,
// guarded against double approval by the same conditional transition used
// everywhere else.
func (s *Service) ApproveDeposit(ctx context.Context, id, notes string) (*db.Deposit, error) {
	dep, err := s.database.GetDeposit(ctx, id)
	if err != nil {
		return nil, err
	}
	if dep == nil {
		return nil, db.ErrNotFound
	}

	err = s.database.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.CompareAndTransition(ctx, tx, "deposits", id,
			db.ReviewPending, db.ReviewApproved,
			db.Set{Column: "admin_notes", Value: notes},
			db.Set{Column: "processed_at", Value: s.now()},
		); err != nil {
			return err
		}
		_, err := s.ledger.Adjust(ctx, tx, dep.WalletAddress, "USDT", ledger.Delta{
			Available:   dep.USDTAmount,
			RealBalance: dep.USDTAmount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.countApproval()
	s.bus.Publish(events.EventDepositUpdated, events.ReviewUpdated{ID: id, Status: db.ReviewApproved})
	s.bus.Publish(events.EventBalanceUpdated, events.BalanceUpdated{
		WalletAddress: dep.WalletAddress,
		Currency:      "USDT",
	})

	zap.L().Info("deposit approved",
		zap.String("deposit_id", id),
		zap.String("credited", dep.USDTAmount.String()))

	return s.database.GetDeposit(ctx, id)
}

// RejectDeposit closes the record without any balance mutation.
func (s *Service) RejectDeposit(ctx context.Context, id, notes string) (*db.Deposit, error) {
	dep, err := s.database.GetDeposit(ctx, id)
	if err != nil {
		return nil, err
	}
	if dep == nil {
		return nil, db.ErrNotFound
	}

	err = s.database.WithTx(ctx, func(tx *sql.Tx) error {
		return db.CompareAndTransition(ctx, tx, "deposits", id,
			db.ReviewPending, db.ReviewRejected,
			db.Set{Column: "admin_notes", Value: notes},
			db.Set{Column: "processed_at", Value: s.now()},
		)
	})
	if err != nil {
		return nil, err
	}

	s.countApproval()
	s.bus.Publish(events.EventDepositUpdated, events.ReviewUpdated{ID: id, Status: db.ReviewRejected})

	zap.L().Info("deposit rejected", zap.String("deposit_id", id))

	return s.database.GetDeposit(ctx, id)
}
