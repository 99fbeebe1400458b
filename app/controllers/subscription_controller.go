package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nebulanotes/nebula/internal/pkg/entitlement"
)

type validateReceiptRequest struct {
	ReceiptData string `json:"receipt_data" validate:"required"`
	ProductID   string `json:"product_id" validate:"required"`
}

// HandleValidateReceipt verifies a submitted App Store receipt and credits the
// purchase to the authenticated user. The client states which product it
// believes it bought; a receipt naming a different product is rejected before
// reconciliation. Validation failures are 400s carrying the mapped error
// message, never raw protocol internals.
func HandleValidateReceipt(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req validateReceiptRequest
	if !parseAndValidate(c, &req) {
		return nil
	}

	result := receiptValidator.VerifyReceipt(c.Context(), req.ReceiptData)
	if !result.IsValid {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "receipt_invalid",
			"message":    result.Error,
			"validation": result,
		})
	}
	if result.ProductID != req.ProductID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "product_mismatch",
			"message":    "the receipt does not belong to the stated product",
			"validation": result,
		})
	}

	e, err := entitlementService.ReconcileValidatedReceipt(c.Context(), user.UserID, result, req.ReceiptData)
	switch {
	case errors.Is(err, entitlement.ErrAlreadyProcessed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":       "already_processed",
			"message":     "this transaction has already been processed",
			"entitlement": e,
		})
	case errors.Is(err, entitlement.ErrUnknownProduct):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "unknown_product",
			"message":    "no subscription plan matches the purchased product",
			"validation": result,
		})
	case err != nil:
		log.Errorf("[Subscription] reconciliation failed for user %d: %v", user.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not apply the purchase",
		})
	}

	if archiveClient != nil {
		if aerr := archiveClient.ArchiveReceipt(c.Context(), user.UserID, result.TransactionID, req.ReceiptData); aerr != nil {
			log.Warnf("[Subscription] receipt archive failed: %v", aerr)
		}
	}

	return c.JSON(fiber.Map{
		"validation":  result,
		"entitlement": e,
	})
}

// HandleRefreshValidation re-validates the stored receipt for the current
// user. A failed re-validation reports the failure but does not revoke the
// subscription.
func HandleRefreshValidation(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	e, result, err := entitlementService.RefreshValidation(c.Context(), user.UserID)
	switch {
	case errors.Is(err, entitlement.ErrNoEntitlement):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no_subscription", "message": "no subscription found for this account",
		})
	case errors.Is(err, entitlement.ErrNoStoredReceipt):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "no_receipt", "message": "no stored receipt to re-validate",
		})
	case err != nil:
		log.Errorf("[Subscription] refresh failed for user %d: %v", user.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not refresh validation",
		})
	}

	return c.JSON(fiber.Map{
		"validation":  result,
		"entitlement": e,
	})
}

// HandleGetSubscription returns the current user's entitlement with its plan.
func HandleGetSubscription(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	e, err := entitlementService.GetForUser(c.Context(), user.UserID)
	if errors.Is(err, entitlement.ErrNoEntitlement) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no_subscription", "message": "no subscription found for this account",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not load subscription",
		})
	}
	return c.JSON(fiber.Map{"entitlement": e})
}

// HandleCancelSubscription marks the user's subscription canceled. The record
// is kept; access runs out with the paid period.
func HandleCancelSubscription(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	e, err := entitlementService.Cancel(c.Context(), user.UserID)
	if errors.Is(err, entitlement.ErrNoEntitlement) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no_subscription", "message": "no subscription found for this account",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not cancel subscription",
		})
	}
	return c.JSON(fiber.Map{"entitlement": e})
}

// HandleResubscribe revives a canceled subscription while its paid period
// still covers now.
func HandleResubscribe(c *fiber.Ctx) error {
	initServices()
	user, ok := requireUser(c)
	if !ok {
		return nil
	}

	e, err := entitlementService.Resubscribe(c.Context(), user.UserID)
	switch {
	case errors.Is(err, entitlement.ErrNoEntitlement):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no_subscription", "message": "no subscription found for this account",
		})
	case errors.Is(err, entitlement.ErrNotCanceled):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "not_canceled", "message": "subscription is not canceled",
		})
	case errors.Is(err, entitlement.ErrPaidPeriodElapsed):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "period_elapsed", "message": "the paid period has already elapsed, purchase a new subscription",
		})
	case errors.Is(err, entitlement.ErrNoProviderSubscription):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "no_provider_subscription", "message": "no linked subscription to reactivate",
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not resubscribe",
		})
	}
	return c.JSON(fiber.Map{"entitlement": e})
}

// HandleListPlans returns the active plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	initServices()

	plans, err := entitlementService.ListPlans(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not load plans",
		})
	}
	return c.JSON(fiber.Map{"plans": plans})
}
