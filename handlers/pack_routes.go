// handlers/pack_routes.go
package handlers

import (
	"evg-scoreboard/middleware"
	"evg-scoreboard/models"
	"evg-scoreboard/services"

	"github.com/gofiber/fiber/v2"
)

func tierParam(c *fiber.Ctx) (models.PackTier, error) {
	tier, ok := models.ParsePackTier(c.Params("tier"))
	if !ok {
		return "", &services.NotFoundError{Resource: "pack tier", ID: c.Params("tier")}
	}
	return tier, nil
}

// SetupPackRoutes registers the pack shop. The acting participant comes from X-User-ID.
func SetupPackRoutes(app *fiber.App, credits *services.CreditService) {
	app.Get("/packs/tiers", func(c *fiber.Ctx) error {
		return c.JSON(credits.Draws.Tiers())
	})

	secured := app.Group("/packs", middleware.UserContextMiddleware())

	secured.Post("/:tier/purchase", func(c *fiber.Ctx) error {
		pid, ok := middleware.ParticipantID(c)
		if !ok {
			return badRequest(c, "X-User-ID is not a participant id")
		}
		tier, err := tierParam(c)
		if err != nil {
			return respondError(c, err)
		}
		res, err := credits.PurchasePack(c.UserContext(), pid, tier)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	secured.Post("/:tier/open", func(c *fiber.Ctx) error {
		pid, ok := middleware.ParticipantID(c)
		if !ok {
			return badRequest(c, "X-User-ID is not a participant id")
		}
		tier, err := tierParam(c)
		if err != nil {
			return respondError(c, err)
		}
		record, err := credits.OpenPack(c.UserContext(), pid, tier)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(record)
	})

	secured.Get("/rewards", func(c *fiber.Ctx) error {
		pid, ok := middleware.ParticipantID(c)
		if !ok {
			return badRequest(c, "X-User-ID is not a participant id")
		}
		page := services.Page{Skip: c.QueryInt("skip", 0), Limit: c.QueryInt("limit", 0)}
		r, err := credits.RewardHistory(c.UserContext(), pid, page)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(r)
	})

	secured.Get("/purchases", func(c *fiber.Ctx) error {
		pid, ok := middleware.ParticipantID(c)
		if !ok {
			return badRequest(c, "X-User-ID is not a participant id")
		}
		purchases, err := credits.PurchaseHistory(c.UserContext(), pid, c.QueryInt("limit", 0))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(purchases)
	})
}

type grantPacksRequest struct {
	ParticipantID uint   `json:"participant_id"`
	Tier          string `json:"tier"`
	Count         int    `json:"count"`
	Reason        string `json:"reason"`
}

// SetupPackAdminRoutes registers free pack grants under an admin group.
func SetupPackAdminRoutes(admin fiber.Router, credits *services.CreditService) {
	admin.Post("/packs/grant", func(c *fiber.Ctx) error {
		var req grantPacksRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		tier, ok := models.ParsePackTier(req.Tier)
		if !ok {
			return respondError(c, &services.NotFoundError{Resource: "pack tier", ID: req.Tier})
		}
		if req.Count == 0 {
			req.Count = 1
		}
		reason := req.Reason
		if reason == "" {
			reason = "granted by " + middleware.UserID(c)
		}
		inv, err := credits.GrantPacks(c.UserContext(), req.ParticipantID, tier, req.Count, reason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(inv)
	})
}
