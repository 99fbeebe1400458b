package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nebulanotes/nebula/app/models"
	"github.com/nebulanotes/nebula/internal/pkg/quota"
)

type createTaskRequest struct {
	Title       string     `json:"title" validate:"required,min=1,max=255"`
	Description string     `json:"description"`
	GalaxyID    *uint      `json:"galaxy_id"`
	DueAt       *time.Time `json:"due_at"`
}

// HandleCreateTask creates a task after the quota check passes.
func HandleCreateTask(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req createTaskRequest
	if !parseAndValidate(c, &req) {
		return nil
	}

	if d := quotaEvaluator.CheckQuota(c.Context(), user.UserID, quota.ResourceTask); !d.Allowed {
		return quotaDenied(c, d)
	}

	task := models.Task{
		UserID:      user.UserID,
		GalaxyID:    req.GalaxyID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatusOpen,
		DueAt:       req.DueAt,
	}
	if err := getDB().Create(&task).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not create task",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// HandleCompleteTask marks a task completed. Completed tasks are swept after
// a day.
func HandleCompleteTask(c *fiber.Ctx) error {
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	taskID, err := c.ParamsInt("id")
	if err != nil || taskID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "invalid task id",
		})
	}

	var task models.Task
	if err := getDB().Where("id = ? AND user_id = ?", taskID, user.UserID).First(&task).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not_found", "message": "task not found",
		})
	}

	if task.Status != models.TaskStatusCompleted {
		now := time.Now()
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = &now
		if err := getDB().Save(&task).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal_error", "message": "could not update task",
			})
		}
	}
	return c.JSON(task)
}

// HandleListTasks returns the user's tasks, open before completed.
func HandleListTasks(c *fiber.Ctx) error {
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	var tasks []models.Task
	q := getDB().Where("user_id = ?", user.UserID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("status ASC, created_at DESC").Find(&tasks).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not load tasks",
		})
	}
	return c.JSON(fiber.Map{"tasks": tasks})
}
