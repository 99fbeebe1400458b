package models

import "time"

const (
	EntitlementStatusActive   = "active"
	EntitlementStatusCanceled = "canceled"
	EntitlementStatusPastDue  = "past_due"
)

const (
	ValidationStatusPending        = "pending"
	ValidationStatusValidated      = "validated"
	ValidationStatusFailed         = "failed"
	ValidationStatusManualOverride = "manual_override"
)

const (
	ValidationEnvironmentProduction = "production"
	ValidationEnvironmentSandbox    = "sandbox"
)

// SubscriptionEntitlement is the persisted record of a user's subscription
// tier together with its billing-provider and receipt provenance. Exactly one
// row exists per user; rows are never hard-deleted, cancellation is a status
// transition.
type SubscriptionEntitlement struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`
	PlanID uint `gorm:"not null;index" json:"plan_id"`

	Status     string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	StartDate  *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate    *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	CanceledAt *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`

	// Payment-provider linkage (webhook event stream). Nullable pointers so an
	// unlinked row stores NULL, not '', under the unique indexes.
	PlatformCustomerID     *string `gorm:"type:varchar(191);default:null;uniqueIndex" json:"platform_customer_id,omitempty"`
	PlatformSubscriptionID *string `gorm:"type:varchar(191);default:null;uniqueIndex" json:"platform_subscription_id,omitempty"`

	// Receipt-platform linkage.
	ReceiptData           string     `gorm:"type:longtext" json:"-"`
	TransactionID         *string    `gorm:"type:varchar(191);default:null;uniqueIndex" json:"transaction_id,omitempty"`
	OriginalTransactionID string     `gorm:"type:varchar(191);default:null;index" json:"original_transaction_id,omitempty"`
	PurchaseDate          *time.Time `gorm:"type:timestamp;default:null" json:"purchase_date,omitempty"`
	ExpirationDate        *time.Time `gorm:"type:timestamp;default:null" json:"expiration_date,omitempty"`
	IsTrialPeriod         bool       `gorm:"default:false" json:"is_trial_period"`
	IsIntroOfferPeriod    bool       `gorm:"default:false" json:"is_intro_offer_period"`
	ValidationEnvironment string     `gorm:"type:varchar(20);default:null" json:"validation_environment,omitempty"`
	LastValidatedAt       *time.Time `gorm:"type:timestamp;default:null" json:"last_validated_at,omitempty"`
	ValidationStatus      string     `gorm:"type:varchar(20);not null;default:'pending'" json:"validation_status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Plan SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// IsActive reports whether the entitlement currently grants paid access.
func (e *SubscriptionEntitlement) IsActive() bool {
	return e.Status == EntitlementStatusActive
}

// WithinPaidPeriod reports whether the already-paid period still covers now.
// Used by resubscribe, which may only revive a cancellation whose period has
// not elapsed.
func (e *SubscriptionEntitlement) WithinPaidPeriod(now time.Time) bool {
	return e.EndDate != nil && !e.EndDate.Before(now)
}

// HasProviderSubscription reports whether a payment-provider subscription is
// linked to this row.
func (e *SubscriptionEntitlement) HasProviderSubscription() bool {
	return e.PlatformSubscriptionID != nil && *e.PlatformSubscriptionID != ""
}
