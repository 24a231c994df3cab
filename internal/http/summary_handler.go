package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"linkpulse/internal/analytics"
	"linkpulse/internal/http/middleware"
	"linkpulse/internal/links"
)

// SummaryHandlers serves the owner-facing analytics rollups.
type SummaryHandlers struct {
	engine *analytics.Engine
}

// NewSummaryHandlers creates the summary handlers.
func NewSummaryHandlers(engine *analytics.Engine) *SummaryHandlers {
	return &SummaryHandlers{engine: engine}
}

// AccountSummaryAction returns the rollup of every link the owner has.
func (h *SummaryHandlers) AccountSummaryAction(ctx *cartridge.Context) error {
	ownerID, _ := ctx.Locals(middleware.OwnerIDKey).(string)
	if ownerID == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	summary, err := h.engine.SummarizeAccount(ctx.UserContext(), ownerID)
	if err != nil {
		ctx.Logger.Error("Failed to build account summary", slog.String("owner_id", ownerID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build summary"})
	}
	return ctx.JSON(summary)
}

// LinkSummaryAction returns the detailed rollup of one owned link.
func (h *SummaryHandlers) LinkSummaryAction(ctx *cartridge.Context) error {
	ownerID, _ := ctx.Locals(middleware.OwnerIDKey).(string)
	if ownerID == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	linkID := ctx.Params("linkId")

	summary, err := h.engine.SummarizeLink(ctx.UserContext(), ownerID, linkID)
	if err != nil {
		var notFound *links.NotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Link not found"})
		}
		ctx.Logger.Error("Failed to build link summary", slog.String("link_id", linkID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build summary"})
	}
	return ctx.JSON(summary)
}
