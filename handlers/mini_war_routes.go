package handlers

import (
	"habit-wars/middleware"
	"habit-wars/services"

	"github.com/gofiber/fiber/v2"
)

type createMiniWarRequest struct {
	Name            string `json:"name" validate:"required,max=80"`
	MaxParticipants int    `json:"max_participants" validate:"omitempty,min=2,max=8"`
	Stakes          int64  `json:"stakes" validate:"gte=0"`
	IsPublic        bool   `json:"is_public"`
}

type joinByCodeRequest struct {
	InviteCode string `json:"invite_code" validate:"required"`
}

func SetupMiniWarRoutes(r fiber.Router, miniWars *services.MiniWarService) {
	r.Post("/mini-wars", func(c *fiber.Ctx) error {
		var req createMiniWarRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		war, err := miniWars.Create(c.UserContext(), middleware.UserID(c), req.Name, req.MaxParticipants, req.Stakes, req.IsPublic)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(war)
	})

	r.Post("/mini-wars/join", func(c *fiber.Ctx) error {
		var req joinByCodeRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		war, err := miniWars.JoinByCode(c.UserContext(), req.InviteCode, middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"mini_war_id": war.ID, "name": war.Name})
	})

	r.Get("/mini-wars/public", func(c *fiber.Ctx) error {
		lobbies, err := miniWars.ListPublicLobbies(c.UserContext(), queryInt(c, "limit", 20))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"mini_wars": lobbies})
	})

	r.Get("/mini-wars/:id", func(c *fiber.Ctx) error {
		war, err := miniWars.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(war)
	})

	r.Post("/mini-wars/:id/join", func(c *fiber.Ctx) error {
		p, err := miniWars.Join(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	r.Post("/mini-wars/:id/start", func(c *fiber.Ctx) error {
		war, err := miniWars.Start(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "war_started_at": war.WarStartedAt})
	})

	r.Post("/mini-wars/:id/complete-habit", func(c *fiber.Ctx) error {
		p, err := miniWars.RecordCompletion(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	r.Post("/mini-wars/:id/end", func(c *fiber.Ctx) error {
		war, err := miniWars.End(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(war)
	})

	r.Post("/mini-wars/:id/leave", func(c *fiber.Ctx) error {
		if err := miniWars.Leave(c.UserContext(), c.Params("id"), middleware.UserID(c)); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true})
	})

	r.Post("/mini-wars/:id/cancel", func(c *fiber.Ctx) error {
		if err := miniWars.Cancel(c.UserContext(), c.Params("id"), middleware.UserID(c)); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true})
	})
}
