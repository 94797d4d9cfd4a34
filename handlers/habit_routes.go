package handlers

import (
	"time"

	"habit-wars/middleware"
	"habit-wars/services"

	"github.com/gofiber/fiber/v2"
)

type createHabitRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	ChallengeID *string `json:"challenge_id"`
}

type createChallengeRequest struct {
	Name         string    `json:"name" validate:"required,max=120"`
	RewardAmount int64     `json:"reward_amount" validate:"gte=0"`
	StartsAt     time.Time `json:"starts_at" validate:"required"`
	EndsAt       time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
}

// SetupHabitRoutes registers habits, streaks and challenge routes.
func SetupHabitRoutes(r fiber.Router, habits *services.HabitService, challenges *services.ChallengeService) {
	r.Post("/habits", func(c *fiber.Ctx) error {
		var req createHabitRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		habit, err := habits.CreateHabit(c.UserContext(), middleware.UserID(c), req.Name, req.ChallengeID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(habit)
	})

	r.Post("/habits/:id/complete", func(c *fiber.Ctx) error {
		result, err := habits.CompleteHabit(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})

	r.Get("/users/me/streak", func(c *fiber.Ctx) error {
		summary, err := habits.StreakSummary(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(summary)
	})

	r.Post("/challenges", func(c *fiber.Ctx) error {
		var req createChallengeRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		challenge, err := challenges.Create(c.UserContext(), middleware.UserID(c), req.Name, req.RewardAmount, req.StartsAt, req.EndsAt)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(challenge)
	})

	r.Post("/challenges/:id/join", func(c *fiber.Ctx) error {
		p, err := challenges.Join(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	r.Get("/challenges/:id/leaderboard", func(c *fiber.Ctx) error {
		board, err := challenges.Leaderboard(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"leaderboard": board})
	})
}
