package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/nebulanotes/nebula/app/models"
	"github.com/nebulanotes/nebula/internal/pkg/middleware"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleRegister creates a new account and returns a bearer token.
func HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if !parseAndValidate(c, &req) {
		return nil
	}

	user := models.User{
		Name:   req.Name,
		Email:  models.NormalizeEmail(req.Email),
		Status: models.STATUS_ACTIVE,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not create account",
		})
	}

	if err := getDB().Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "email_taken", "message": "an account with this email already exists",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not create account",
		})
	}

	token, err := middleware.GenerateToken(user.ID, user.Email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not issue token",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// HandleLogin verifies credentials and returns a bearer token.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if !parseAndValidate(c, &req) {
		return nil
	}

	var user models.User
	err := getDB().Where("email = ?", models.NormalizeEmail(req.Email)).First(&user).Error
	if err != nil || !user.CheckPassword(req.Password) {
		// Same response for unknown email and wrong password.
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid_credentials", "message": "email or password is incorrect",
		})
	}
	if user.Status != models.STATUS_ACTIVE {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "account_disabled", "message": "this account is disabled",
		})
	}

	token, err := middleware.GenerateToken(user.ID, user.Email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not issue token",
		})
	}

	now := time.Now()
	user.LastLoginAt = &now
	getDB().Model(&user).Update("last_login_at", &now)

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}
