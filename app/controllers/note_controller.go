package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nebulanotes/nebula/app/models"
	"github.com/nebulanotes/nebula/internal/pkg/quota"
)

type createNoteRequest struct {
	Title    string `json:"title" validate:"required,min=1,max=255"`
	Content  string `json:"content"`
	GalaxyID *uint  `json:"galaxy_id"`
	IsPinned bool   `json:"is_pinned"`
}

// HandleCreateNote creates a note after the quota check passes.
func HandleCreateNote(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req createNoteRequest
	if !parseAndValidate(c, &req) {
		return nil
	}

	if d := quotaEvaluator.CheckQuota(c.Context(), user.UserID, quota.ResourceNote); !d.Allowed {
		return quotaDenied(c, d)
	}

	note := models.Note{
		UserID:   user.UserID,
		GalaxyID: req.GalaxyID,
		Title:    req.Title,
		Content:  req.Content,
		IsPinned: req.IsPinned,
	}
	if err := getDB().Create(&note).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not create note",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(note)
}

// HandleListNotes returns the user's notes, pinned first, newest first.
func HandleListNotes(c *fiber.Ctx) error {
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	var notes []models.Note
	q := getDB().Where("user_id = ?", user.UserID)
	if galaxyID := c.QueryInt("galaxy_id"); galaxyID > 0 {
		q = q.Where("galaxy_id = ?", galaxyID)
	}
	if err := q.Order("is_pinned DESC, created_at DESC").Find(&notes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not load notes",
		})
	}
	return c.JSON(fiber.Map{"notes": notes})
}
