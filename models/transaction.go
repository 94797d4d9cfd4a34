// models/transaction.go
package models

import (
	"time"
)

// TransactionKind classifies a ledger movement
type TransactionKind string

const (
	TransactionKindBonus         TransactionKind = "bonus"        // funding bootstrap
	TransactionKindCowardBonus   TransactionKind = "coward_bonus" // opponent declined
	TransactionKindWarWin        TransactionKind = "war_win"
	TransactionKindWarRefund     TransactionKind = "war_refund"
	TransactionKindChallengeWin  TransactionKind = "challenge_win"
	TransactionKindParticipation TransactionKind = "participation"
	TransactionKindMiniWarWin    TransactionKind = "mini_war_win"
	TransactionKindReward        TransactionKind = "reward"
	TransactionKindSpend         TransactionKind = "spend"
)

// Transaction is an immutable ledger entry. Only LedgerService creates them.
type Transaction struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string          `gorm:"index;not null" json:"user_id"`
	Amount       int64           `gorm:"not null" json:"amount"` // signed
	Kind         TransactionKind `gorm:"type:varchar(32);index;not null" json:"kind"`
	Description  string          `gorm:"type:text" json:"description"`
	ChallengeID  *string         `gorm:"index" json:"challenge_id,omitempty"`
	ReferenceID  string          `gorm:"index" json:"reference_id,omitempty"` // war / mini war id
	BalanceAfter int64           `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}
