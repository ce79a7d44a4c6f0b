package model

import "time"

type TransactionType string

const (
	TxEarnSurvey   TransactionType = "EarnSurvey"
	TxEarnReferral TransactionType = "EarnReferral"
	TxEarnProfile  TransactionType = "EarnProfile"
	TxRedeem       TransactionType = "Redeem"
)

// Transaction is an immutable ledger entry. ID order is creation order.
type Transaction struct {
	ID            int64           `json:"id"`
	AccountID     string          `json:"account_id"`
	Type          TransactionType `json:"type"`
	Delta         int             `json:"delta"`
	BalanceAfter  int             `json:"balance_after"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}
