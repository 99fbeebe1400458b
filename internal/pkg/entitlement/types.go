package entitlement

import (
	"errors"
	"time"
)

// Provider webhook event types handled by ApplyProviderEvent. Events arrive
// with signatures already verified upstream.
const (
	EventSubscriptionCreated = "created"
	EventSubscriptionUpdated = "updated"
	EventSubscriptionDeleted = "deleted"
	EventPaymentSucceeded    = "payment_succeeded"
	EventPaymentFailed       = "payment_failed"
)

var (
	// ErrAlreadyProcessed rejects a receipt whose transaction id has already
	// been credited. Resubmitting the same purchase is the idempotency
	// boundary, not an internal failure.
	ErrAlreadyProcessed = errors.New("transaction has already been processed")

	// ErrUnknownProduct means no active plan maps to the purchased product id.
	ErrUnknownProduct = errors.New("no subscription plan matches the purchased product")

	// ErrNoEntitlement means the user has no entitlement row at all.
	ErrNoEntitlement = errors.New("no subscription entitlement found")

	// ErrNotCanceled rejects a resubscribe on an entitlement that is not in
	// the canceled state.
	ErrNotCanceled = errors.New("subscription is not canceled")

	// ErrPaidPeriodElapsed rejects a resubscribe after the already-paid
	// period has run out.
	ErrPaidPeriodElapsed = errors.New("paid subscription period has already elapsed")

	// ErrNoProviderSubscription rejects a resubscribe for an entitlement
	// without a linked provider subscription to reactivate.
	ErrNoProviderSubscription = errors.New("no linked provider subscription to reactivate")

	// ErrNoStoredReceipt means a re-validation was requested but the
	// entitlement carries no receipt blob.
	ErrNoStoredReceipt = errors.New("entitlement has no stored receipt data")
)

// ProviderEvent is an already-verified payment-provider webhook event reduced
// to the fields the reconciler acts on. UserID and ProviderPlanRef come from
// the provider's checkout metadata and are only consulted when a created
// event references a subscription id not yet linked to any row.
type ProviderEvent struct {
	Type                   string     `json:"type"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	ProviderCustomerID     string     `json:"provider_customer_id,omitempty"`
	UserID                 uint       `json:"user_id,omitempty"`
	ProviderPlanRef        string     `json:"plan_ref,omitempty"`
	Status                 string     `json:"status,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
}

// WebhookEventInput carries a raw webhook delivery for idempotent persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
