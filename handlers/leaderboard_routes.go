// handlers/leaderboard_routes.go
package handlers

import (
	"evg-scoreboard/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboard *services.LeaderboardService) {
	g := app.Group("/leaderboard")

	g.Get("/", func(c *fiber.Ctx) error {
		snap, err := leaderboard.Snapshot(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	})

	g.Get("/top", func(c *fiber.Ctx) error {
		top, err := leaderboard.Top(c.UserContext(), c.QueryInt("n", 3))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(top)
	})

	g.Get("/daily-leader", func(c *fiber.Ctx) error {
		entry, err := leaderboard.DailyLeader(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(entry)
	})

	g.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := leaderboard.Stats(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})

	g.Get("/rank/:id", func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "invalid participant id")
		}
		entry, err := leaderboard.Rank(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(entry)
	})
}
