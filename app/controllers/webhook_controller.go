package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nebulanotes/nebula/internal/pkg/entitlement"
)

// webhookPayload is the provider event envelope after upstream signature
// verification.
type webhookPayload struct {
	ID                     string `json:"id"`
	Type                   string `json:"type" validate:"required"`
	ProviderSubscriptionID string `json:"provider_subscription_id" validate:"required"`
	ProviderCustomerID     string `json:"provider_customer_id"`
	Status                 string `json:"status"`
	CurrentPeriodEnd       *int64 `json:"current_period_end"`

	// Checkout metadata echoed back by the provider. Created events use these
	// to link a fresh subscription id to the user's entitlement row.
	UserID  uint   `json:"user_id"`
	PlanRef string `json:"plan_ref"`
}

// HandleBillingWebhook records a provider event idempotently and applies it
// to the entitlement it references. Events for unknown subscriptions and
// replayed event ids are acknowledged with 200 so the provider stops
// retrying.
func HandleBillingWebhook(c *fiber.Ctx) error {
	initServices()

	var payload webhookPayload
	if !parseAndValidate(c, &payload) {
		return nil
	}

	rawBody := string(c.Body())
	created, event, err := entitlementService.RecordWebhookEvent(c.Context(), entitlement.WebhookEventInput{
		Provider:        c.Params("provider", "stripe"),
		ProviderEventID: payload.ID,
		EventType:       payload.Type,
		PayloadJSON:     rawBody,
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Webhook] failed to record event %s: %v", payload.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not record event",
		})
	}
	if !created {
		// Replay of an event id we already hold.
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}

	if archiveClient != nil {
		if aerr := archiveClient.ArchiveWebhookPayload(c.Context(), event.Provider, event.ProviderEventID, rawBody); aerr != nil {
			log.Warnf("[Webhook] payload archive failed: %v", aerr)
		}
	}

	providerEvent := entitlement.ProviderEvent{
		Type:                   payload.Type,
		ProviderSubscriptionID: payload.ProviderSubscriptionID,
		ProviderCustomerID:     payload.ProviderCustomerID,
		UserID:                 payload.UserID,
		ProviderPlanRef:        payload.PlanRef,
		Status:                 payload.Status,
	}
	if payload.CurrentPeriodEnd != nil {
		t := time.Unix(*payload.CurrentPeriodEnd, 0).UTC()
		providerEvent.CurrentPeriodEnd = &t
	}

	_, applyErr := entitlementService.ApplyProviderEvent(c.Context(), providerEvent)
	if markErr := entitlementService.MarkWebhookProcessed(c.Context(), event.ID, applyErr); markErr != nil {
		log.Warnf("[Webhook] failed to mark event %d processed: %v", event.ID, markErr)
	}
	if applyErr != nil {
		log.Errorf("[Webhook] failed to apply event %s: %v", payload.ID, applyErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error", "message": "could not apply event",
		})
	}

	return c.JSON(fiber.Map{"received": true})
}
