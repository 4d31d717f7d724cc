package api

import (
	"errors"
	"net/http"

	"options-core/internal/approval"
	"options-core/internal/ledger"
	"options-core/internal/settings"
	"options-core/internal/settlement"
	"options-core/pkg/db"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// respondError maps domain errors to HTTP responses in one place. Insufficient
// funds surfacing here means a reservation invariant broke upstream, so it is
// logged at error level and reported as a server fault.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code": "NOT_FOUND", "error": "resource not found",
		})
	case errors.Is(err, db.ErrAlreadyProcessed):
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "ALREADY_PROCESSED", "error": "resource already processed",
		})
	case errors.Is(err, settlement.ErrNotExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "NOT_EXPIRED", "error": "trade has not expired",
		})
	case errors.Is(err, settlement.ErrInvalidTrade):
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_TRADE", "error": err.Error(),
		})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		zap.L().Error("balance invariant violated", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code": "INSUFFICIENT_FUNDS", "error": "insufficient funds",
		})
	default:
		zap.L().Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code": "INTERNAL_ERROR", "error": "internal server error",
		})
	}
}

// tradeView flattens nullable trade columns for JSON.
func tradeView(t *db.Trade) gin.H {
	v := gin.H{
		"id":                t.ID,
		"walletAddress":     t.WalletAddress,
		"asset":             t.Asset,
		"side":              t.Side,
		"entryPrice":        t.EntryPrice,
		"amountUsd":         t.AmountUSD,
		"durationSecs":      t.DurationSecs,
		"profitMultiplier":  t.ProfitMultiplier,
		"status":            t.Status,
		"createdAt":         t.CreatedAt,
		"expiresAt":         t.ExpiresAt,
	}
	if t.Result.Valid {
		v["result"] = t.Result.String
	}
	if t.ExitPrice.Valid {
		v["exitPrice"] = t.ExitPrice.Float64
	}
	if t.PnL.Valid {
		v["pnl"] = t.PnL.Decimal
	}
	if t.ClosedAt.Valid {
		v["closedAt"] = t.ClosedAt.Time
	}
	return v
}

// getBalance returns the caller's balance for one currency (default USDT).
func (s *Server) getBalance(c *gin.Context) {
	currency := c.DefaultQuery("currency", "USDT")
	b, err := s.Ledger.Get(c.Request.Context(), CurrentWallet(c), currency)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"walletAddress": b.WalletAddress,
		"currency":      b.Currency,
		"available":     b.Available,
		"frozen":        b.Frozen,
		"realBalance":   b.RealBalance,
		"realWinnings":  b.RealWinnings,
	})
}

// getTiers lists the configured duration tiers.
func (s *Server) getTiers(c *gin.Context) {
	tiers, err := s.DB.ListTiers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, gin.H{
			"durationSecs":     t.DurationSecs,
			"profitMultiplier": t.ProfitMultiplier,
			"minStakeUsd":      t.MinStakeUSD,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tiers": out})
}

// getTrades lists the caller's trades, newest first.
func (s *Server) getTrades(c *gin.Context) {
	trades, err := s.DB.ListTradesByWallet(c.Request.Context(), CurrentWallet(c), 100)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(trades))
	for i := range trades {
		out = append(out, tradeView(&trades[i]))
	}
	c.JSON(http.StatusOK, gin.H{"trades": out})
}

// openTrade opens a timed position for the caller.
func (s *Server) openTrade(c *gin.Context) {
	var req struct {
		Asset        string          `json:"asset"`
		Side         string          `json:"side"`
		AmountUSD    decimal.Decimal `json:"amountUsd"`
		DurationSecs int64           `json:"durationSecs"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_PAYLOAD", "error": "invalid request payload",
		})
		return
	}
	if req.Asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_TRADE", "error": "asset is required",
		})
		return
	}

	trade, err := s.Engine.Open(c.Request.Context(), settlement.OpenRequest{
		WalletAddress: CurrentWallet(c),
		Asset:         req.Asset,
		Side:          req.Side,
		AmountUSD:     req.AmountUSD,
		DurationSecs:  req.DurationSecs,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tradeView(trade))
}

// requestWithdrawal reserves funds and queues the withdrawal for review.
func (s *Server) requestWithdrawal(c *gin.Context) {
	var req struct {
		Currency           string          `json:"currency"`
		CryptoAmount       decimal.Decimal `json:"cryptoAmount"`
		USDTAmount         decimal.Decimal `json:"usdtAmount"`
		Fee                decimal.Decimal `json:"fee"`
		DestinationAddress string          `json:"destinationAddress"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_PAYLOAD", "error": "invalid request payload",
		})
		return
	}
	if req.Currency == "" || req.DestinationAddress == "" ||
		!req.CryptoAmount.IsPositive() || req.Fee.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_WITHDRAWAL", "error": "currency, positive amount and destination are required",
		})
		return
	}

	w, err := s.Approvals.RequestWithdrawal(c.Request.Context(), approval.WithdrawalRequest{
		WalletAddress:      CurrentWallet(c),
		Currency:           req.Currency,
		CryptoAmount:       req.CryptoAmount,
		USDTAmount:         req.USDTAmount,
		Fee:                req.Fee,
		DestinationAddress: req.DestinationAddress,
	})
	if err != nil {
		// Over-withdrawal is a user error here, not an invariant break.
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code": "INSUFFICIENT_FUNDS", "error": "insufficient available balance",
			})
			return
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": w.ID, "status": w.Status})
}

// submitDeposit records a transfer hash for admin verification.
func (s *Server) submitDeposit(c *gin.Context) {
	var req struct {
		Currency       string          `json:"currency"`
		CryptoAmount   decimal.Decimal `json:"cryptoAmount"`
		ConversionRate float64         `json:"conversionRate"`
		TxHash         string          `json:"txHash"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_PAYLOAD", "error": "invalid request payload",
		})
		return
	}
	if req.Currency == "" || req.TxHash == "" ||
		!req.CryptoAmount.IsPositive() || req.ConversionRate <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_DEPOSIT", "error": "currency, positive amount, rate and tx hash are required",
		})
		return
	}

	dep, err := s.Approvals.SubmitDeposit(c.Request.Context(), approval.DepositRequest{
		WalletAddress:  CurrentWallet(c),
		Currency:       req.Currency,
		CryptoAmount:   req.CryptoAmount,
		ConversionRate: req.ConversionRate,
		TxHash:         req.TxHash,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id": dep.ID, "status": dep.Status, "usdtAmount": dep.USDTAmount,
	})
}

// manualTradeControl presets a WIN/LOSS outcome on an active trade.
func (s *Server) manualTradeControl(c *gin.Context) {
	var req struct {
		TradeID string `json:"tradeId"`
		Outcome string `json:"outcome"`
	}
	if err := c.BindJSON(&req); err != nil || req.TradeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_PAYLOAD", "error": "tradeId and outcome are required",
		})
		return
	}

	if err := s.Engine.SetManualOutcome(c.Request.Context(), req.TradeID, req.Outcome, CurrentUserID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tradeId": req.TradeID, "outcome": req.Outcome})
}

// listPendingWithdrawals returns the review queue.
func (s *Server) listPendingWithdrawals(c *gin.Context) {
	ws, err := s.DB.ListWithdrawalsByStatus(c.Request.Context(), db.ReviewPending, 200)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": ws})
}

type reviewRequest struct {
	ID     string `json:"id"`
	TxHash string `json:"txHash"`
	Notes  string `json:"notes"`
}

func bindReview(c *gin.Context) (reviewRequest, bool) {
	var req reviewRequest
	if err := c.BindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_PAYLOAD", "error": "id is required",
		})
		return req, false
	}
	return req, true
}

func (s *Server) approveWithdrawal(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}
	w, err := s.Approvals.ApproveWithdrawal(c.Request.Context(), req.ID, req.TxHash, req.Notes)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": w.ID, "status": w.Status})
}

func (s *Server) rejectWithdrawal(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}
	w, err := s.Approvals.RejectWithdrawal(c.Request.Context(), req.ID, req.Notes)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": w.ID, "status": w.Status})
}

func (s *Server) approveDeposit(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}
	dep, err := s.Approvals.ApproveDeposit(c.Request.Context(), req.ID, req.Notes)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": dep.ID, "status": dep.Status})
}

func (s *Server) rejectDeposit(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}
	dep, err := s.Approvals.RejectDeposit(c.Request.Context(), req.ID, req.Notes)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": dep.ID, "status": dep.Status})
}

// getTradeSettings returns the platform outcome override configuration.
func (s *Server) getTradeSettings(c *gin.Context) {
	ts, err := s.Settings.Get(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ts)
}

// updateTradeSettings validates and persists the outcome override.
func (s *Server) updateTradeSettings(c *gin.Context) {
	var ts settings.TradeSettings
	if err := c.BindJSON(&ts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_PAYLOAD", "error": "invalid request payload",
		})
		return
	}
	if err := s.Settings.Update(c.Request.Context(), ts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": "INVALID_SETTINGS", "error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, ts)
}

// settleExpired triggers one sweep pass on demand.
func (s *Server) settleExpired(c *gin.Context) {
	n, err := s.Engine.SettleExpired(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settled": n})
}

// getMetrics returns the operational snapshot.
func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}
