// handlers/ledger_routes.go
package handlers

import (
	"evg-scoreboard/middleware"
	"evg-scoreboard/services"

	"github.com/gofiber/fiber/v2"
)

type addPointsRequest struct {
	ParticipantID uint   `json:"participant_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

// SetupLedgerAdminRoutes registers point adjustments and ledger inspection under an admin group.
func SetupLedgerAdminRoutes(admin fiber.Router, ledger *services.LedgerService, credits *services.CreditService) {
	admin.Post("/points", func(c *fiber.Ctx) error {
		var req addPointsRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		txn, err := ledger.RecordTransaction(c.UserContext(), services.RecordRequest{
			ParticipantID: req.ParticipantID,
			Amount:        req.Amount,
			Reason:        req.Reason,
			ActorID:       middleware.UserID(c),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(txn)
	})

	admin.Get("/ledger/recent", func(c *fiber.Ctx) error {
		txns, err := ledger.Recent(c.UserContext(), c.QueryInt("limit", 0))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(txns)
	})

	admin.Get("/ledger/audit", func(c *fiber.Ctx) error {
		drifts, err := ledger.VerifyBalances(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"ok": len(drifts) == 0, "drifts": drifts})
	})

	admin.Post("/ledger/transactions/:id/process", func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "invalid transaction id")
		}
		credited, err := credits.ProcessTransaction(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"credited": credited})
	})
}
