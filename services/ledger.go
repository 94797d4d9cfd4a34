package services

import (
	"context"
	"fmt"

	"habit-wars/models"
	"habit-wars/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry describes one balance movement. Amount is always positive; Debit
// stores it negated.
type Entry struct {
	UserID      string
	Amount      int64
	Kind        models.TransactionKind
	Description string
	ChallengeID *string
	ReferenceID string
}

// BalanceReport compares the stored balance with seed + sum(transactions).
type BalanceReport struct {
	UserID           string `json:"user_id"`
	Balance          int64  `json:"balance"`
	Seed             int64  `json:"seed"`
	TransactionTotal int64  `json:"transaction_total"`
	Drift            int64  `json:"drift"`
}

// LedgerService is the only writer of User.RewardsBalance and Transaction rows.
type LedgerService struct {
	DB                   *gorm.DB
	ParticipationPercent int64
}

func NewLedgerService(db *gorm.DB, participationPercent int64) *LedgerService {
	return &LedgerService{DB: db, ParticipationPercent: participationPercent}
}

// Credit adds a positive amount and returns the new balance.
func (s *LedgerService) Credit(ctx context.Context, e Entry) (int64, error) {
	var balance int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = s.CreditTx(tx, e)
		return err
	})
	return balance, err
}

// Debit removes a positive amount; the balance never goes below zero.
func (s *LedgerService) Debit(ctx context.Context, e Entry) (int64, error) {
	var balance int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = s.DebitTx(tx, e)
		return err
	})
	return balance, err
}

// CreditTx is Credit inside a caller-owned transaction.
func (s *LedgerService) CreditTx(tx *gorm.DB, e Entry) (int64, error) {
	return s.apply(tx, e, 1)
}

// DebitTx is Debit inside a caller-owned transaction.
func (s *LedgerService) DebitTx(tx *gorm.DB, e Entry) (int64, error) {
	return s.apply(tx, e, -1)
}

func (s *LedgerService) apply(tx *gorm.DB, e Entry, sign int64) (int64, error) {
	if e.Amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidInput, e.Amount)
	}

	user, err := lockUser(tx, e.UserID)
	if err != nil {
		return 0, err
	}
	if sign < 0 && user.RewardsBalance < e.Amount {
		return 0, fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, user.RewardsBalance, e.Amount)
	}

	newBalance := user.RewardsBalance + sign*e.Amount
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
		Update("rewards_balance", newBalance).Error; err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	txn := models.Transaction{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Amount:       sign * e.Amount,
		Kind:         e.Kind,
		Description:  e.Description,
		ChallengeID:  e.ChallengeID,
		ReferenceID:  e.ReferenceID,
		BalanceAfter: newBalance,
	}
	if err := tx.Create(&txn).Error; err != nil {
		return 0, fmt.Errorf("record transaction: %w", err)
	}

	utils.LedgerTransactions.WithLabelValues(string(e.Kind)).Inc()
	utils.Logger.Debug("ledger_entry",
		zap.String("user_id", user.ID),
		zap.String("kind", string(e.Kind)),
		zap.Int64("amount", txn.Amount),
		zap.Int64("balance", newBalance),
	)
	return newBalance, nil
}

// AwardChallengeWinner credits the winner the full amount and every other
// participant ParticipationPercent of it. Shares that round to zero are skipped.
func (s *LedgerService) AwardChallengeWinner(tx *gorm.DB, challengeID, winnerID string, amount int64) error {
	var participants []models.ChallengeParticipant
	if err := tx.Where("challenge_id = ?", challengeID).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return fmt.Errorf("load participants: %w", err)
	}

	ref := challengeID
	if _, err := s.CreditTx(tx, Entry{
		UserID:      winnerID,
		Amount:      amount,
		Kind:        models.TransactionKindChallengeWin,
		Description: "Challenge winner",
		ChallengeID: &ref,
		ReferenceID: challengeID,
	}); err != nil {
		return err
	}

	share := amount * s.ParticipationPercent / 100
	if share <= 0 {
		return nil
	}
	for _, p := range participants {
		if p.UserID == winnerID {
			continue
		}
		if _, err := s.CreditTx(tx, Entry{
			UserID:      p.UserID,
			Amount:      share,
			Kind:        models.TransactionKindParticipation,
			Description: "Challenge participation",
			ChallengeID: &ref,
			ReferenceID: challengeID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AddRewards grants currency outside of wars (admin/automation).
func (s *LedgerService) AddRewards(ctx context.Context, userID string, amount int64, kind models.TransactionKind, description string) (int64, error) {
	if kind == "" {
		kind = models.TransactionKindReward
	}
	return s.Credit(ctx, Entry{UserID: userID, Amount: amount, Kind: kind, Description: description})
}

// SpendRewards spends currency on an in-app purchase.
func (s *LedgerService) SpendRewards(ctx context.Context, userID string, amount int64, kind models.TransactionKind, description string) (int64, error) {
	if kind == "" {
		kind = models.TransactionKindSpend
	}
	return s.Debit(ctx, Entry{UserID: userID, Amount: amount, Kind: kind, Description: description})
}

func (s *LedgerService) Balance(ctx context.Context, userID string) (int64, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Select("id", "rewards_balance").
		First(&user, "id = ?", userID).Error; err != nil {
		return 0, notFound(err, "user")
	}
	return user.RewardsBalance, nil
}

// ListTransactions returns one page of a user's transactions, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, page, size int) ([]models.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	db := s.DB.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.Transaction
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// VerifyBalance recomputes seed + sum(transactions) and reports any drift.
func (s *LedgerService) VerifyBalance(ctx context.Context, userID string) (*BalanceReport, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}

	var sum int64
	if err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error; err != nil {
		return nil, err
	}

	return &BalanceReport{
		UserID:           userID,
		Balance:          user.RewardsBalance,
		Seed:             user.SeedBalance,
		TransactionTotal: sum,
		Drift:            user.RewardsBalance - (user.SeedBalance + sum),
	}, nil
}

func lockUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user "+userID)
	}
	return &user, nil
}
