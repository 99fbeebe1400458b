package entitlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nebulanotes/nebula/app/models"
	"github.com/nebulanotes/nebula/internal/pkg/appstore"
)

// ReceiptValidator verifies a stored receipt blob. Satisfied by
// *appstore.Client.
type ReceiptValidator interface {
	VerifyReceipt(ctx context.Context, receiptData string) appstore.ValidationResult
}

// Service reconciles validated receipts and provider webhook events into the
// single entitlement row each user owns.
type Service struct {
	repo      Repository
	validator ReceiptValidator
}

// NewService creates an entitlement service from an injected repository and
// receipt validator.
func NewService(repo Repository, validator ReceiptValidator) *Service {
	return &Service{repo: repo, validator: validator}
}

// NewServiceFromDB creates an entitlement service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, validator ReceiptValidator) *Service {
	return NewService(NewRepository(db), validator)
}

// ReconcileValidatedReceipt credits a successfully validated receipt to the
// user. The transaction id is the idempotency boundary: a receipt already
// credited returns the existing entitlement with ErrAlreadyProcessed, whether
// the duplicate is detected up front or lost a concurrent insert race to the
// unique index.
func (s *Service) ReconcileValidatedReceipt(
	ctx context.Context,
	userID uint,
	validation appstore.ValidationResult,
	receiptData string,
) (*models.SubscriptionEntitlement, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	if !validation.IsValid {
		return nil, errors.New("validation result is not valid")
	}
	if strings.TrimSpace(validation.TransactionID) == "" {
		return nil, errors.New("validation result has no transaction id")
	}

	// Duplicate-transaction guard comes before anything else.
	if existing, err := s.repo.FindByTransactionID(validation.TransactionID); err == nil {
		return existing, ErrAlreadyProcessed
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	plan, err := s.repo.FindPlanByAppleProductID(validation.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownProduct
		}
		return nil, err
	}

	now := time.Now()

	existing, err := s.repo.FindByUserID(userID)
	switch {
	case err == nil:
		// Renewal or plan switch: the user's row is updated in place.
		applyValidation(existing, plan.ID, validation, receiptData, now)
		if err := s.repo.Save(existing); err != nil {
			return nil, err
		}
		return existing, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		e := &models.SubscriptionEntitlement{UserID: userID}
		applyValidation(e, plan.ID, validation, receiptData, now)
		if err := s.repo.Create(e); err != nil {
			// A concurrent submission of the same purchase won the insert
			// race; the unique indexes make this equivalent to the up-front
			// duplicate guard.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if winner, findErr := s.repo.FindByTransactionID(validation.TransactionID); findErr == nil {
					return winner, ErrAlreadyProcessed
				}
				if winner, findErr := s.repo.FindByUserID(userID); findErr == nil {
					return winner, ErrAlreadyProcessed
				}
				return nil, ErrAlreadyProcessed
			}
			return nil, err
		}
		return e, nil

	default:
		return nil, err
	}
}

// applyValidation writes a validated purchase onto an entitlement row.
func applyValidation(
	e *models.SubscriptionEntitlement,
	planID uint,
	validation appstore.ValidationResult,
	receiptData string,
	now time.Time,
) {
	e.PlanID = planID
	e.Status = models.EntitlementStatusActive
	e.CanceledAt = nil

	startDate := now
	if validation.PurchaseDate != nil {
		startDate = *validation.PurchaseDate
	}
	e.StartDate = &startDate
	e.EndDate = validation.ExpirationDate

	e.ReceiptData = receiptData
	e.TransactionID = strPtr(validation.TransactionID)
	e.OriginalTransactionID = validation.OriginalTransactionID
	e.PurchaseDate = validation.PurchaseDate
	e.ExpirationDate = validation.ExpirationDate
	e.IsTrialPeriod = validation.IsTrialPeriod
	e.IsIntroOfferPeriod = validation.IsIntroOfferPeriod
	e.ValidationEnvironment = string(validation.Environment)
	e.LastValidatedAt = &now
	e.ValidationStatus = models.ValidationStatusValidated
}

// RefreshValidation re-validates the stored receipt. A successful
// re-validation behaves like crediting the purchase again: the row returns to
// active with the fresh validation fields. A failed re-validation marks the
// validation status failed but never revokes the entitlement.
func (s *Service) RefreshValidation(ctx context.Context, userID uint) (*models.SubscriptionEntitlement, appstore.ValidationResult, error) {
	e, err := s.findForUser(userID)
	if err != nil {
		return nil, appstore.ValidationResult{}, err
	}
	if strings.TrimSpace(e.ReceiptData) == "" {
		return nil, appstore.ValidationResult{}, ErrNoStoredReceipt
	}

	result := s.validator.VerifyReceipt(ctx, e.ReceiptData)
	now := time.Now()
	e.LastValidatedAt = &now

	if result.IsValid {
		e.Status = models.EntitlementStatusActive
		e.CanceledAt = nil
		e.ValidationStatus = models.ValidationStatusValidated
		e.ValidationEnvironment = string(result.Environment)
		e.TransactionID = strPtr(result.TransactionID)
		e.OriginalTransactionID = result.OriginalTransactionID
		e.PurchaseDate = result.PurchaseDate
		e.ExpirationDate = result.ExpirationDate
		e.EndDate = result.ExpirationDate
		e.IsTrialPeriod = result.IsTrialPeriod
		e.IsIntroOfferPeriod = result.IsIntroOfferPeriod
	} else {
		log.Warnf("[Entitlement] receipt re-validation failed for user %d: %s", userID, result.Error)
		e.ValidationStatus = models.ValidationStatusFailed
	}

	if err := s.repo.Save(e); err != nil {
		return nil, result, err
	}
	return e, result, nil
}

// ApplyProviderEvent applies a payment-provider webhook event to the
// entitlement it references. A created event whose subscription id is not yet
// linked anywhere uses the provider's checkout metadata to link or create the
// user's row; any other event for an unknown subscription id is logged and
// dropped, never treated as a failure.
func (s *Service) ApplyProviderEvent(ctx context.Context, event ProviderEvent) (*models.SubscriptionEntitlement, error) {
	_ = ctx
	subID := strings.TrimSpace(event.ProviderSubscriptionID)
	if subID == "" {
		return nil, errors.New("provider_subscription_id is required")
	}

	now := time.Now()

	e, err := s.repo.FindByPlatformSubscriptionID(subID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if event.Type == EventSubscriptionCreated && event.UserID != 0 {
				return s.linkProviderSubscription(event, subID, now)
			}
			log.Warnf("[Entitlement] webhook %s references unknown subscription %s, skipping", event.Type, subID)
			return nil, nil
		}
		return nil, err
	}

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		e.Status = normalizeProviderStatus(event.Status)
		if event.CurrentPeriodEnd != nil {
			e.EndDate = event.CurrentPeriodEnd
		}
		if cust := strings.TrimSpace(event.ProviderCustomerID); cust != "" {
			e.PlatformCustomerID = &cust
		}
		if e.Status == models.EntitlementStatusActive {
			e.CanceledAt = nil
		}
	case EventSubscriptionDeleted:
		e.Status = models.EntitlementStatusCanceled
		e.CanceledAt = &now
	case EventPaymentSucceeded:
		e.Status = models.EntitlementStatusActive
	case EventPaymentFailed:
		e.Status = models.EntitlementStatusPastDue
	default:
		log.Warnf("[Entitlement] unhandled webhook event type %s for subscription %s", event.Type, subID)
		return e, nil
	}

	if err := s.repo.Save(e); err != nil {
		return nil, err
	}
	return e, nil
}

// linkProviderSubscription handles a created event for a subscription id no
// row carries yet. An existing entitlement for the referenced user is linked
// in place; a user with no row at all gets one created from the provider's
// plan reference.
func (s *Service) linkProviderSubscription(event ProviderEvent, subID string, now time.Time) (*models.SubscriptionEntitlement, error) {
	status := normalizeProviderStatus(event.Status)

	e, err := s.repo.FindByUserID(event.UserID)
	switch {
	case err == nil:
		e.PlatformSubscriptionID = &subID
		if cust := strings.TrimSpace(event.ProviderCustomerID); cust != "" {
			e.PlatformCustomerID = &cust
		}
		e.Status = status
		if event.CurrentPeriodEnd != nil {
			e.EndDate = event.CurrentPeriodEnd
		}
		if e.Status == models.EntitlementStatusActive {
			e.CanceledAt = nil
		}
		if err := s.repo.Save(e); err != nil {
			return nil, err
		}
		return e, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		plan, perr := s.repo.FindPlanByAppleProductID(strings.TrimSpace(event.ProviderPlanRef))
		if perr != nil {
			if errors.Is(perr, gorm.ErrRecordNotFound) {
				log.Warnf("[Entitlement] created event for subscription %s carries unknown plan ref %q, skipping", subID, event.ProviderPlanRef)
				return nil, nil
			}
			return nil, perr
		}

		created := &models.SubscriptionEntitlement{
			UserID:                 event.UserID,
			PlanID:                 plan.ID,
			Status:                 status,
			StartDate:              &now,
			EndDate:                event.CurrentPeriodEnd,
			PlatformSubscriptionID: &subID,
			ValidationStatus:       models.ValidationStatusPending,
		}
		if cust := strings.TrimSpace(event.ProviderCustomerID); cust != "" {
			created.PlatformCustomerID = &cust
		}
		if err := s.repo.Create(created); err != nil {
			// A concurrent delivery of the same event won the insert race.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if winner, ferr := s.repo.FindByPlatformSubscriptionID(subID); ferr == nil {
					return winner, nil
				}
			}
			return nil, err
		}
		return created, nil

	default:
		return nil, err
	}
}

// Cancel marks the user's entitlement canceled. The row is kept; cancellation
// is a status transition. Canceling an already-canceled entitlement keeps the
// original cancellation timestamp.
func (s *Service) Cancel(ctx context.Context, userID uint) (*models.SubscriptionEntitlement, error) {
	_ = ctx
	e, err := s.findForUser(userID)
	if err != nil {
		return nil, err
	}

	if e.Status != models.EntitlementStatusCanceled {
		now := time.Now()
		e.Status = models.EntitlementStatusCanceled
		e.CanceledAt = &now
		if err := s.repo.Save(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Resubscribe revives a canceled entitlement. Only allowed while the
// already-paid period still covers now and a provider subscription is linked
// for reactivation.
func (s *Service) Resubscribe(ctx context.Context, userID uint) (*models.SubscriptionEntitlement, error) {
	_ = ctx
	e, err := s.findForUser(userID)
	if err != nil {
		return nil, err
	}

	if e.Status != models.EntitlementStatusCanceled {
		return nil, ErrNotCanceled
	}
	if !e.WithinPaidPeriod(time.Now()) {
		return nil, ErrPaidPeriodElapsed
	}
	if !e.HasProviderSubscription() {
		return nil, ErrNoProviderSubscription
	}

	e.Status = models.EntitlementStatusActive
	e.CanceledAt = nil
	if err := s.repo.Save(e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetForUser returns the user's entitlement with its plan loaded.
func (s *Service) GetForUser(ctx context.Context, userID uint) (*models.SubscriptionEntitlement, error) {
	_ = ctx
	return s.findForUser(userID)
}

// ListPlans returns the active plan catalog ordered by price.
func (s *Service) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	_ = ctx
	return s.repo.ListActivePlans()
}

// RecordWebhookEvent persists a webhook delivery idempotently. The returned
// bool is false when the event id was seen before.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: strings.TrimSpace(in.ProviderEventID),
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

func (s *Service) findForUser(userID uint) (*models.SubscriptionEntitlement, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	e, err := s.repo.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoEntitlement
		}
		return nil, err
	}
	return e, nil
}

// strPtr returns a pointer to s, or nil for the empty string so unset values
// store NULL under the unique indexes.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// normalizeProviderStatus maps the provider-reported status string onto the
// local status machine, defaulting to active.
func normalizeProviderStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case models.EntitlementStatusCanceled:
		return models.EntitlementStatusCanceled
	case models.EntitlementStatusPastDue:
		return models.EntitlementStatusPastDue
	default:
		return models.EntitlementStatusActive
	}
}
