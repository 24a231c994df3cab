package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"linkpulse/internal/http/middleware"
	"linkpulse/internal/links"
)

// CreateShortLinkParams is the body of a short-link creation request.
type CreateShortLinkParams struct {
	OriginalURL string `json:"originalUrl"`
	CustomSlug  string `json:"customSlug"`
	Title       string `json:"title"`
}

// ShortLinkResponse is returned for a created link.
type ShortLinkResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ShortURL  string    `json:"shortUrl"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Clicks    int64     `json:"clicks"`
}

// CreateShortLinkAction creates a link for the authenticated owner.
func (h *Handlers) CreateShortLinkAction(ctx *cartridge.Context) error {
	ownerID, _ := ctx.Locals(middleware.OwnerIDKey).(string)
	if ownerID == "" {
		return ctx.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var params CreateShortLinkParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	link, err := h.links.CreateShortLink(ctx.UserContext(), links.CreateInput{
		OwnerID:     ownerID,
		OriginalURL: params.OriginalURL,
		CustomSlug:  params.CustomSlug,
		Title:       params.Title,
	})
	if err != nil {
		var validationErr *links.ValidationError
		switch {
		case errors.As(err, &validationErr):
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": validationErr.Error(),
				"field": validationErr.Field,
			})
		case errors.Is(err, links.ErrSlugConflict):
			return ctx.Status(http.StatusConflict).JSON(fiber.Map{"error": "Slug already taken"})
		case errors.Is(err, links.ErrAllocationExhausted):
			ctx.Logger.Error("Slug allocation exhausted", slog.String("owner_id", ownerID))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not allocate a short link, try again"})
		}
		ctx.Logger.Error("Failed to create short link", slog.String("owner_id", ownerID), slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": errInternal})
	}

	return ctx.Status(http.StatusCreated).JSON(ShortLinkResponse{
		ID:        link.ID,
		URL:       link.DestinationURL,
		ShortURL:  h.shortURL(link.ID),
		Title:     link.Title,
		CreatedAt: link.CreatedAt,
		Clicks:    0,
	})
}

func (h *Handlers) shortURL(id string) string {
	return strings.TrimSuffix(h.cfg.PublicURL, "/") + "/r/" + id
}
