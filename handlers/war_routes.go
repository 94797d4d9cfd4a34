package handlers

import (
	"habit-wars/middleware"
	"habit-wars/services"

	"github.com/gofiber/fiber/v2"
)

type declareWarRequest struct {
	DefenderID  string `json:"defender_id" validate:"required"`
	ChallengeID string `json:"challenge_id" validate:"required"`
	Stakes      int64  `json:"stakes" validate:"required,gt=0"`
	Taunt       string `json:"taunt" validate:"max=280"`
}

type startSabotageRequest struct {
	Intensity int `json:"intensity"`
}

type sabotageHabitRequest struct {
	HabitID string `json:"habit_id" validate:"required"`
}

// SetupWarRoutes registers 1v1 war and sabotage routes on a router that
// already carries the user context.
func SetupWarRoutes(r fiber.Router, wars *services.WarService, sabotage *services.SabotageService) {
	r.Post("/wars", func(c *fiber.Ctx) error {
		var req declareWarRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		war, err := wars.DeclareWar(c.UserContext(), middleware.UserID(c), req.DefenderID, req.ChallengeID, req.Stakes, req.Taunt)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"war_id":     war.ID,
			"expires_at": war.ExpiresAt,
			"taunt":      war.Taunt,
		})
	})

	r.Get("/wars/:id", func(c *fiber.Ctx) error {
		war, err := wars.GetWar(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(war)
	})

	r.Get("/users/me/wars", func(c *fiber.Ctx) error {
		list, err := wars.ListUserWars(c.UserContext(), middleware.UserID(c), c.Query("status"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"wars": list})
	})

	r.Get("/users/me/wars/history", func(c *fiber.Ctx) error {
		history, err := wars.ListWarHistory(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"history": history})
	})

	r.Post("/wars/:id/accept", func(c *fiber.Ctx) error {
		if _, err := wars.AcceptWar(c.UserContext(), c.Params("id"), middleware.UserID(c)); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true})
	})

	r.Post("/wars/:id/decline", func(c *fiber.Ctx) error {
		if _, err := wars.DeclineWar(c.UserContext(), c.Params("id"), middleware.UserID(c)); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true})
	})

	r.Post("/wars/:id/complete", func(c *fiber.Ctx) error {
		outcome, err := wars.CompleteWar(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(outcome)
	})

	r.Post("/wars/:id/sabotage", func(c *fiber.Ctx) error {
		var req startSabotageRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		war, err := sabotage.Start(c.UserContext(), c.Params("id"), middleware.UserID(c), req.Intensity)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"intensity":  war.Sabotage.Intensity,
			"started_at": war.Sabotage.StartedAt,
		})
	})

	r.Post("/wars/:id/sabotage/habits", func(c *fiber.Ctx) error {
		var req sabotageHabitRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		progress, err := sabotage.RecordHabit(c.UserContext(), c.Params("id"), middleware.UserID(c), req.HabitID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(progress)
	})

	r.Post("/wars/:id/sabotage/end", func(c *fiber.Ctx) error {
		report, err := sabotage.End(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"duration_seconds": int64(report.Duration.Seconds()),
			"total_habits":     report.TotalHabits,
			"total_penalties":  report.TotalPenalties,
		})
	})
}
