// handlers/challenge_routes.go
package handlers

import (
	"evg-scoreboard/middleware"
	"evg-scoreboard/models"
	"evg-scoreboard/services"

	"github.com/gofiber/fiber/v2"
)

type participantIDsRequest struct {
	ParticipantIDs []uint `json:"participant_ids"`
}

// SetupChallengeRoutes registers the participant side of challenges.
func SetupChallengeRoutes(app *fiber.App, challenges *services.ChallengeService, adminRole string) {
	secured := app.Group("/challenges", middleware.UserContextMiddleware())

	secured.Get("/", func(c *fiber.Ctx) error {
		if middleware.HasRole(c, adminRole) {
			list, err := challenges.List(c.UserContext(), models.ChallengeStatus(c.Query("status")))
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(viewsOf(list))
		}
		pid, ok := middleware.ParticipantID(c)
		if !ok {
			return badRequest(c, "X-User-ID is not a participant id")
		}
		list, err := challenges.ListVisible(c.UserContext(), pid)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(viewsOf(list))
	})

	secured.Post("/:id/attempt", func(c *fiber.Ctx) error {
		pid, ok := middleware.ParticipantID(c)
		if !ok {
			return badRequest(c, "X-User-ID is not a participant id")
		}
		ch, err := challenges.Attempt(c.UserContext(), c.Params("id"), pid)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(viewOf(ch))
	})
}

// challengeView exposes the join tables as id lists.
type challengeView struct {
	*models.Challenge
	AssignedTo  []uint `json:"assigned_to"`
	CompletedBy []uint `json:"completed_by"`
}

func viewOf(ch *models.Challenge) challengeView {
	return challengeView{Challenge: ch, AssignedTo: ch.AssignedIDs(), CompletedBy: ch.CompletedIDs()}
}

func viewsOf(list []models.Challenge) []challengeView {
	out := make([]challengeView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i]))
	}
	return out
}

// SetupChallengeAdminRoutes registers challenge management under an admin group.
func SetupChallengeAdminRoutes(admin fiber.Router, challenges *services.ChallengeService) {
	admin.Get("/challenges/counts", func(c *fiber.Ctx) error {
		counts, err := challenges.CountByStatus(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(counts)
	})

	admin.Get("/challenges/:id", func(c *fiber.Ctx) error {
		ch, err := challenges.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(viewOf(ch))
	})

	admin.Post("/challenges", func(c *fiber.Ctx) error {
		var in services.ChallengeInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		ch, err := challenges.Create(c.UserContext(), in, middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(viewOf(ch))
	})

	admin.Put("/challenges/:id", func(c *fiber.Ctx) error {
		var in services.ChallengeInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		ch, err := challenges.Update(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(viewOf(ch))
	})

	admin.Delete("/challenges/:id", func(c *fiber.Ctx) error {
		if err := challenges.Delete(c.UserContext(), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	admin.Post("/challenges/:id/assign", func(c *fiber.Ctx) error {
		var req participantIDsRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		ch, err := challenges.Assign(c.UserContext(), c.Params("id"), req.ParticipantIDs)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(viewOf(ch))
	})

	admin.Post("/challenges/:id/validate", func(c *fiber.Ctx) error {
		var req participantIDsRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := challenges.Validate(c.UserContext(), c.Params("id"), req.ParticipantIDs, middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"challenge":    viewOf(res.Challenge),
			"credited":     res.Credited,
			"skipped":      res.Skipped,
			"transactions": res.Transactions,
		})
	})

	admin.Post("/challenges/:id/fail", func(c *fiber.Ctx) error {
		ch, err := challenges.Fail(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(viewOf(ch))
	})

	admin.Post("/challenges/:id/reopen", func(c *fiber.Ctx) error {
		ch, err := challenges.Reopen(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(viewOf(ch))
	})
}
