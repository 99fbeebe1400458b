package entitlement

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nebulanotes/nebula/app/models"
)

// Repository provides DB operations used by the entitlement service.
type Repository interface {
	FindByUserID(userID uint) (*models.SubscriptionEntitlement, error)
	FindByTransactionID(transactionID string) (*models.SubscriptionEntitlement, error)
	FindByPlatformSubscriptionID(platformSubscriptionID string) (*models.SubscriptionEntitlement, error)
	Create(entitlement *models.SubscriptionEntitlement) error
	Save(entitlement *models.SubscriptionEntitlement) error

	FindPlanByAppleProductID(productID string) (*models.SubscriptionPlan, error)
	FindPlanByName(name string) (*models.SubscriptionPlan, error)
	ListActivePlans() ([]models.SubscriptionPlan, error)

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an entitlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindByUserID(userID uint) (*models.SubscriptionEntitlement, error) {
	var e models.SubscriptionEntitlement
	err := r.db.Preload("Plan").Where("user_id = ?", userID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) FindByTransactionID(transactionID string) (*models.SubscriptionEntitlement, error) {
	var e models.SubscriptionEntitlement
	err := r.db.Where("transaction_id = ?", transactionID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) FindByPlatformSubscriptionID(platformSubscriptionID string) (*models.SubscriptionEntitlement, error) {
	var e models.SubscriptionEntitlement
	err := r.db.Where("platform_subscription_id = ?", platformSubscriptionID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) Create(entitlement *models.SubscriptionEntitlement) error {
	return r.db.Create(entitlement).Error
}

func (r *gormRepository) Save(entitlement *models.SubscriptionEntitlement) error {
	return r.db.Save(entitlement).Error
}

func (r *gormRepository) FindPlanByAppleProductID(productID string) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	err := r.db.Where("apple_product_id = ? AND is_active = ?", productID, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) FindPlanByName(name string) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	err := r.db.Where("name = ?", name).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListActivePlans() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("is_active = ?", true).Order("price_cents ASC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	if strings.TrimSpace(event.ProviderEventID) == "" {
		sum := sha256.Sum256([]byte(event.PayloadJSON))
		event.ProviderEventID = "hash:" + hex.EncodeToString(sum[:])
	}

	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
