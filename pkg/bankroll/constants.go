package bankroll

import "time"

const (
	operationPlaceBet          = "place_bet"
	operationSettleBet         = "settle_bet"
	operationEditBet           = "edit_bet"
	operationDeleteBet         = "delete_bet"
	operationDeposit           = "deposit"
	operationWithdraw          = "withdraw"
	operationSetInitialBalance = "set_initial_balance"
	operationResetBankroll     = "reset_bankroll"
	operationPublishEvent      = "publish_event"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// moneyScale is the number of fractional digits stored for balances, stakes and amounts.
	moneyScale = 2
	// oddScale is the number of fractional digits stored for odds.
	oddScale = 3

	maxTransactionAttempts = 3
	conflictRetryDelay     = 10 * time.Millisecond

	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)
