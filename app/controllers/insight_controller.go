package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nebulanotes/nebula/app/models"
	"github.com/nebulanotes/nebula/internal/pkg/quota"
)

type createInsightRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=summary suggestion priority"`
	Content string `json:"content" validate:"required"`
	NoteID  *uint  `json:"note_id"`
	TaskID  *uint  `json:"task_id"`
}

// HandleCreateInsight records a generated insight. The daily quota window is
// anchored to midnight, so the counter resets at the start of each calendar
// day. Generation itself happens upstream; this endpoint meters and stores
// the result.
func HandleCreateInsight(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req createInsightRequest
	if !parseAndValidate(c, &req) {
		return nil
	}

	if d := quotaEvaluator.CheckQuota(c.Context(), user.UserID, quota.ResourceAIInsight); !d.Allowed {
		return quotaDenied(c, d)
	}

	insight := models.AIInsight{
		UserID:  user.UserID,
		NoteID:  req.NoteID,
		TaskID:  req.TaskID,
		Kind:    req.Kind,
		Content: req.Content,
	}
	if err := getDB().Create(&insight).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not record insight",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(insight)
}

// HandleGetQuota exposes the current allowance for a resource kind, for
// clients that want to show remaining capacity.
func HandleGetQuota(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	kind := quota.ResourceKind(c.Query("kind", string(quota.ResourceNote)))
	d := quotaEvaluator.CheckQuota(c.Context(), user.UserID, kind)
	return c.JSON(d)
}
