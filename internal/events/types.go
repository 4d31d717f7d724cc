package events

// Event enumerates the state-change topics emitted by the core. Publishers
// emit only after their database transaction commits, so subscribers never
// observe a phantom state.
type Event string

const (
	EventBalanceUpdated    Event = "balance.updated"
	EventTradeSettled      Event = "trade.settled"
	EventWithdrawalUpdated Event = "withdrawal.updated"
	EventDepositUpdated    Event = "deposit.updated"
)

// BalanceUpdated signals that a wallet's balance changed in some currency.
type BalanceUpdated struct {
	WalletAddress string `json:"walletAddress"`
	Currency      string `json:"currency"`
}

// TradeSettled signals a trade's single active -> finished transition.
type TradeSettled struct {
	WalletAddress string `json:"walletAddress"`
	TradeID       string `json:"tradeId"`
	Result        string `json:"result"`
}

// ReviewUpdated signals a withdrawal or deposit status transition.
type ReviewUpdated struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
