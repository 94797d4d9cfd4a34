package services

import (
	"fmt"

	"habit-wars/config"
	"habit-wars/models"

	"gorm.io/gorm"
)

// FundingPolicy decides what happens when a war participant cannot cover the
// stakes. It runs inside the war operation's transaction.
type FundingPolicy interface {
	Fund(tx *gorm.DB, ledger *LedgerService, userID string, stakes int64, warID string) error
}

// BootstrapFunding tops the balance up to stakes+Bonus with a single bonus
// transaction.
type BootstrapFunding struct {
	Bonus int64
}

func (p BootstrapFunding) Fund(tx *gorm.DB, ledger *LedgerService, userID string, stakes int64, warID string) error {
	user, err := lockUser(tx, userID)
	if err != nil {
		return err
	}
	if user.RewardsBalance >= stakes {
		return nil
	}

	topUp := stakes + p.Bonus - user.RewardsBalance
	_, err = ledger.CreditTx(tx, Entry{
		UserID:      userID,
		Amount:      topUp,
		Kind:        models.TransactionKindBonus,
		Description: fmt.Sprintf("War funding bonus (%s)", coins(topUp)),
		ReferenceID: warID,
	})
	return err
}

// StrictFunding refuses to start a war the user cannot afford.
type StrictFunding struct{}

func (StrictFunding) Fund(tx *gorm.DB, _ *LedgerService, userID string, stakes int64, _ string) error {
	user, err := lockUser(tx, userID)
	if err != nil {
		return err
	}
	if user.RewardsBalance < stakes {
		return fmt.Errorf("%w: balance %d, stakes %d", ErrInsufficientFunds, user.RewardsBalance, stakes)
	}
	return nil
}

// NewFundingPolicy maps the economy setting to a policy.
func NewFundingPolicy(eco config.Economy) FundingPolicy {
	if eco.FundingPolicy == config.FundingPolicyStrict {
		return StrictFunding{}
	}
	return BootstrapFunding{Bonus: eco.BootstrapBonus}
}
