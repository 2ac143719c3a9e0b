// Package http contains the inbound HTTP handlers.
package http

import (
	"github.com/gofiber/fiber/v2"

	"mailliam_server/core/domain"
	"mailliam_server/core/service/mail"
	"mailliam_server/pkg/apperr"
)

// DigestHandler exposes the user registration and digest endpoints.
type DigestHandler struct {
	service *mail.Service
}

func NewDigestHandler(service *mail.Service) *DigestHandler {
	return &DigestHandler{service: service}
}

func (h *DigestHandler) Register(app *fiber.App) {
	app.Get("/", h.Welcome)

	api := app.Group("/api")
	api.Post("/users", h.RegisterUser)
	api.Get("/emails/important", h.ImportantEmails)
	api.Get("/digest", h.Digest)
}

// Welcome answers the root probe.
func (h *DigestHandler) Welcome(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Welcome to Mailliam API"})
}

type registerUserRequest struct {
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SummaryTime  string `json:"summary_time"`
}

// RegisterUser upserts a user's OAuth credentials.
func (h *DigestHandler) RegisterUser(c *fiber.Ctx) error {
	var req registerUserRequest
	if err := c.BodyParser(&req); err != nil {
		return AppErrorResponse(c, apperr.BadRequest("invalid request body"))
	}

	creds := &domain.UserCredentials{
		Email:        req.Email,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		SummaryTime:  req.SummaryTime,
	}
	if err := h.service.RegisterUser(c.Context(), creds); err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{
		"email":        creds.Email,
		"summary_time": creds.SummaryTime,
	})
}

// ImportantEmails returns the user's recent messages that survived the
// importance merge.
func (h *DigestHandler) ImportantEmails(c *fiber.Ctx) error {
	email := c.Query("user")

	emails, err := h.service.ImportantEmails(c.Context(), email)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{
		"emails": emails,
		"count":  len(emails),
	})
}

// Digest returns the rendered Markdown digest for one user.
func (h *DigestHandler) Digest(c *fiber.Ctx) error {
	email := c.Query("user")
	if c.QueryBool("refresh", false) {
		h.service.InvalidateDigest(c.Context(), email)
	}

	digest, err := h.service.Digest(c.Context(), email)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{"digest": digest})
}
