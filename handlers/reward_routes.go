package handlers

import (
	"habit-wars/middleware"
	"habit-wars/models"
	"habit-wars/services"

	"github.com/gofiber/fiber/v2"
)

type spendRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=200"`
}

type addRewardsRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Kind        string `json:"kind" validate:"omitempty,oneof=reward bonus"`
	Description string `json:"description" validate:"max=200"`
}

// SetupRewardRoutes registers the caller's wallet routes.
func SetupRewardRoutes(r fiber.Router, ledger *services.LedgerService) {
	r.Get("/rewards/balance", func(c *fiber.Ctx) error {
		balance, err := ledger.Balance(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"balance": balance})
	})

	r.Get("/rewards/transactions", func(c *fiber.Ctx) error {
		page := queryInt(c, "page", 1)
		size := queryInt(c, "size", 20)
		txs, total, err := ledger.ListTransactions(c.UserContext(), middleware.UserID(c), page, size)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"transactions": txs,
			"total":        total,
			"page":         page,
			"size":         size,
		})
	})

	r.Post("/rewards/spend", func(c *fiber.Ctx) error {
		var req spendRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		balance, err := ledger.SpendRewards(c.UserContext(), middleware.UserID(c), req.Amount, models.TransactionKindSpend, req.Description)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"balance": balance})
	})

	r.Get("/rewards/stream", ledger.StreamTransactionsSSE)
}

// SetupAdminRoutes registers operator routes. r must already require the
// admin role.
func SetupAdminRoutes(r fiber.Router, ledger *services.LedgerService, settlement *services.SettlementService) {
	r.Post("/rewards/add", func(c *fiber.Ctx) error {
		var req addRewardsRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		balance, err := ledger.AddRewards(c.UserContext(), req.UserID, req.Amount, models.TransactionKind(req.Kind), req.Description)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"user_id": req.UserID, "balance": balance})
	})

	r.Get("/rewards/verify/:userId", func(c *fiber.Ctx) error {
		report, err := ledger.VerifyBalance(c.UserContext(), c.Params("userId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(report)
	})

	r.Get("/jobs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"jobs": settlement.JobNames()})
	})

	r.Post("/jobs/:name", func(c *fiber.Ctx) error {
		name := c.Params("name")
		if err := settlement.RunJob(c.UserContext(), name); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"job": name, "status": "ok"})
	})
}
