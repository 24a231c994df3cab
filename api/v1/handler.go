package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/karloscodes/cartridge"

	"linkpulse/internal/attributes"
	"linkpulse/internal/clicks"
	"linkpulse/internal/config"
	"linkpulse/internal/links"
	"linkpulse/internal/owners"
	"linkpulse/internal/visitors"
)

const (
	errInvalidRequest = "Invalid request"
	errInternal       = "Internal server error"
)

// Handlers serves the public click endpoints and short-link creation.
type Handlers struct {
	cfg      *config.Config
	links    *links.Service
	recorder *clicks.Recorder
	visitors *visitors.Resolver
}

// NewHandlers wires the v1 handlers.
func NewHandlers(cfg *config.Config, linkService *links.Service, recorder *clicks.Recorder, visitorResolver *visitors.Resolver) *Handlers {
	return &Handlers{
		cfg:      cfg,
		links:    linkService,
		recorder: recorder,
		visitors: visitorResolver,
	}
}

// RedirectAction sends the visitor to the link destination and records the
// click in the background. HEAD requests are answered without recording.
func (h *Handlers) RedirectAction(ctx *cartridge.Context) error {
	linkID := ctx.Params("linkId")
	if linkID == "" {
		linkID = ctx.Query("id")
	}

	link, err := links.GetLinkOrNotFound(ctx.UserContext(), ctx.DB(), linkID)
	if err != nil {
		var notFound *links.NotFoundError
		if errors.As(err, &notFound) {
			ctx.Logger.Debug("Redirect for unknown link", slog.String("link_id", linkID))
			return ctx.Redirect(h.cfg.NotFoundURL, fiber.StatusFound)
		}
		ctx.Logger.Error("Failed to load link", slog.String("link_id", linkID), slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": errInternal})
	}

	identity := h.visitors.FromRequest(ctx.Ctx)
	h.visitors.Attach(ctx.Ctx, identity)

	if ctx.Method() != fiber.MethodHead {
		visit := visitFromRequest(ctx.Ctx)
		visit.LinkID = link.ID
		visit.Link = link
		visit.VisitorID = utils.CopyString(identity.ID)
		h.recorder.RecordAsync(visit)
	}

	return ctx.Redirect(link.DestinationURL, fiber.StatusFound)
}

// BeaconParams is the body sent by profile pages for clicks that do not go
// through the redirect.
type BeaconParams struct {
	ProfileUsername string `json:"profileUsername"`
	LinkID          string `json:"linkId"`
	LinkTitle       string `json:"linkTitle"`
	LinkURL         string `json:"linkUrl"`
	VisitorID       string `json:"visitorId"`
	UserAgent       string `json:"userAgent"`
	Referrer        string `json:"referrer"`
}

// BeaconAction records a profile link click reported by the page itself.
func (h *Handlers) BeaconAction(ctx *cartridge.Context) error {
	// sendBeacon posts text/plain, so the body is decoded regardless of
	// Content-Type.
	var params BeaconParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		ctx.Logger.Debug("Failed to parse beacon request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}
	if strings.TrimSpace(params.ProfileUsername) == "" || strings.TrimSpace(params.LinkID) == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "profileUsername and linkId are required"})
	}

	db := ctx.DB()
	reqCtx := ctx.UserContext()

	profile, err := owners.FindProfile(reqCtx, db, params.ProfileUsername)
	if err != nil {
		return h.beaconLookupError(ctx, err)
	}
	link, err := links.GetOwnedLinkOrNotFound(reqCtx, db, profile.OwnerID, params.LinkID)
	if err != nil {
		return h.beaconLookupError(ctx, err)
	}

	visit := visitFromRequest(ctx.Ctx)
	visit.LinkID = link.ID
	visit.Link = link
	visit.VisitorID = params.VisitorID
	visit.CookieVisitorID = ctx.Cookies(h.visitors.CookieName)
	if params.UserAgent != "" {
		visit.UserAgent = params.UserAgent
	}
	if params.Referrer != "" {
		visit.Referrer = params.Referrer
	}

	result, err := h.recorder.Record(reqCtx, visit)
	if err != nil {
		ctx.Logger.Error("Failed to record beacon click", slog.String("link_id", link.ID), slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": errInternal})
	}
	if result.PersistErr == nil {
		ctx.Logger.Debug("Beacon click recorded",
			slog.String("profile", profile.Username),
			slog.String("link_id", link.ID),
			slog.String("link_title", params.LinkTitle))
	}
	h.visitors.Attach(ctx.Ctx, result.Identity)

	return ctx.JSON(fiber.Map{"success": true})
}

func (h *Handlers) beaconLookupError(ctx *cartridge.Context, err error) error {
	var profileNotFound *owners.ProfileNotFoundError
	var linkNotFound *links.NotFoundError
	switch {
	case errors.As(err, &profileNotFound):
		return ctx.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
	case errors.As(err, &linkNotFound):
		return ctx.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Link not found"})
	}
	ctx.Logger.Error("Beacon lookup failed", slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": errInternal})
}

// visitFromRequest copies the click metadata out of the request. Fiber
// reuses request buffers once the handler returns, so every value is copied
// before it can reach a background recording.
func visitFromRequest(c *fiber.Ctx) clicks.Visit {
	userAgent := c.Get("User-Agent")
	if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}
	hint := edgeGeoHint(c)

	return clicks.Visit{
		UserAgent: utils.CopyString(userAgent),
		Referrer:  utils.CopyString(c.Get(fiber.HeaderReferer)),
		IP:        utils.CopyString(getClientIP(c)),
		Hint: attributes.Location{
			Country: utils.CopyString(hint.Country),
			Region:  utils.CopyString(hint.Region),
			City:    utils.CopyString(hint.City),
		},
	}
}
