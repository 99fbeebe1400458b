package models

import "time"

// PlanFreeName is the distinguished catalog entry used when a user has no
// active entitlement.
const PlanFreeName = "Free"

// UnlimitedLimit marks a plan limit as unconditionally allowed.
const UnlimitedLimit = -1

// SubscriptionPlan is a catalog entry describing a purchasable tier and the
// per-resource limits it grants. AppleProductID links the plan to the App
// Store product identifier carried inside receipts.
type SubscriptionPlan struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Description      string    `gorm:"type:text" json:"description"`
	PriceCents       int       `gorm:"not null;default:0" json:"price_cents"`
	Currency         string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	BillingInterval  string    `gorm:"type:varchar(16);not null;default:'month'" json:"billing_interval"`
	AppleProductID   string    `gorm:"type:varchar(191);uniqueIndex" json:"apple_product_id"`
	NoteLimit        int       `gorm:"not null;default:0" json:"note_limit"`
	TaskLimit        int       `gorm:"not null;default:0" json:"task_limit"`
	GalaxyLimit      int       `gorm:"not null;default:0" json:"galaxy_limit"`
	AIInsightsPerDay int       `gorm:"not null;default:0" json:"ai_insights_per_day"`
	IsActive         bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsUnlimited reports whether the given limit value means "no cap".
func IsUnlimited(limit int) bool {
	return limit == UnlimitedLimit
}
