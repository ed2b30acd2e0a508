package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mayanpathak/Code-Collab/internal/auth"
	"github.com/mayanpathak/Code-Collab/internal/project"
	"github.com/mayanpathak/Code-Collab/internal/store"
)

// messageHandlers is the REST surface over the message store. Every route is
// mounted behind the auth+membership middleware, so handlers can rely on
// claims and the project record being present.
type messageHandlers struct {
	store    store.Store
	pageSize int
	log      *zap.SugaredLogger
}

// GET /projects/:projectId/messages?limit&offset
func (h *messageHandlers) list(c *fiber.Ctx) error {
	room := c.Params("projectId")
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(h.pageSize)))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 {
		limit = h.pageSize
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := h.store.Range(c.Context(), room, limit, offset)
	if err != nil {
		return h.storeError(c, err, "Failed to get messages")
	}
	count, err := h.store.Count(c.Context(), room)
	if err != nil {
		return h.storeError(c, err, "Failed to get messages")
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"data":   fiber.Map{"messages": nonNil(msgs), "totalCount": count},
	})
}

// POST /projects/:projectId/messages/search
func (h *messageHandlers) search(c *fiber.Ctx) error {
	var body struct {
		SearchTerm string `json:"searchTerm"`
	}
	if err := c.BodyParser(&body); err != nil || strings.TrimSpace(body.SearchTerm) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status": "error", "message": "Search term is required",
		})
	}

	msgs, err := h.store.Search(c.Context(), c.Params("projectId"), strings.TrimSpace(body.SearchTerm))
	if err != nil {
		return h.storeError(c, err, "Failed to search messages")
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"data":   fiber.Map{"messages": nonNil(msgs), "totalCount": len(msgs)},
	})
}

// DELETE /projects/:projectId/messages — owner only.
func (h *messageHandlers) clear(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	p := c.Locals("project").(*project.Project)
	if !p.IsOwner(claims.UserID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status": "error", "message": "Only the project owner can clear messages",
		})
	}

	if err := h.store.Clear(c.Context(), c.Params("projectId")); err != nil {
		return h.storeError(c, err, "Failed to clear messages")
	}
	return c.JSON(fiber.Map{"status": "success", "message": "Messages cleared successfully"})
}

// GET /projects/:projectId/messages/count
func (h *messageHandlers) count(c *fiber.Ctx) error {
	count, err := h.store.Count(c.Context(), c.Params("projectId"))
	if err != nil {
		return h.storeError(c, err, "Failed to get message count")
	}
	return c.JSON(fiber.Map{"status": "success", "data": fiber.Map{"count": count}})
}

func (h *messageHandlers) storeError(c *fiber.Ctx, err error, msg string) error {
	h.log.Warnw("message store error", "path", c.Path(), "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"status": "error", "message": msg,
	})
}

func nonNil(msgs []*store.Message) []*store.Message {
	if msgs == nil {
		return []*store.Message{}
	}
	return msgs
}
