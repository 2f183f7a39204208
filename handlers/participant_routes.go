// handlers/participant_routes.go
package handlers

import (
	"evg-scoreboard/services"

	"github.com/gofiber/fiber/v2"
)

func SetupParticipantRoutes(app *fiber.App, participants *services.ParticipantService, ledger *services.LedgerService, credits *services.CreditService) {
	g := app.Group("/participants")

	g.Get("/", func(c *fiber.Ctx) error {
		list, err := participants.List(c.UserContext(), c.Query("q"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	g.Get("/groom", func(c *fiber.Ctx) error {
		p, err := participants.Groom(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	g.Get("/:id", func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "invalid participant id")
		}
		p, err := participants.Get(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	g.Get("/:id/wallet", func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "invalid participant id")
		}
		w, err := credits.Wallet(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(w)
	})

	g.Get("/:id/history", func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "invalid participant id")
		}
		page := services.Page{Skip: c.QueryInt("skip", 0), Limit: c.QueryInt("limit", 0)}
		h, err := ledger.History(c.UserContext(), id, page)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(h)
	})

	g.Get("/:id/rewards", func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "invalid participant id")
		}
		page := services.Page{Skip: c.QueryInt("skip", 0), Limit: c.QueryInt("limit", 0)}
		r, err := credits.RewardHistory(c.UserContext(), id, page)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(r)
	})
}
