package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nebulanotes/nebula/app/models"
	"github.com/nebulanotes/nebula/internal/pkg/quota"
)

type createGalaxyRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// HandleCreateGalaxy creates a workspace after the quota check passes.
func HandleCreateGalaxy(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req createGalaxyRequest
	if !parseAndValidate(c, &req) {
		return nil
	}

	if d := quotaEvaluator.CheckQuota(c.Context(), user.UserID, quota.ResourceGalaxy); !d.Allowed {
		return quotaDenied(c, d)
	}

	galaxy := models.Galaxy{
		UserID: user.UserID,
		Name:   req.Name,
	}
	if req.Color != "" {
		galaxy.Color = req.Color
	}
	if err := getDB().Create(&galaxy).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not create galaxy",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(galaxy)
}

// HandleListGalaxies returns the user's workspaces.
func HandleListGalaxies(c *fiber.Ctx) error {
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	var galaxies []models.Galaxy
	if err := getDB().Where("user_id = ?", user.UserID).Order("created_at ASC").Find(&galaxies).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not load galaxies",
		})
	}
	return c.JSON(fiber.Map{"galaxies": galaxies})
}
