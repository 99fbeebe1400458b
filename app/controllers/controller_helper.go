package controllers

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/nebulanotes/nebula/internal/pkg/appstore"
	"github.com/nebulanotes/nebula/internal/pkg/database"
	"github.com/nebulanotes/nebula/internal/pkg/entitlement"
	"github.com/nebulanotes/nebula/internal/pkg/quota"
	"github.com/nebulanotes/nebula/internal/pkg/receiptarchive"
	"github.com/nebulanotes/nebula/internal/pkg/usercontext"
)

var validate = validator.New()

var (
	servicesOnce sync.Once

	entitlementService *entitlement.Service
	quotaEvaluator     *quota.Evaluator
	receiptValidator   entitlement.ReceiptValidator
	archiveClient      *receiptarchive.Client
)

// initServices wires the shared service singletons on first use. The archive
// client stays nil when archiving is disabled or misconfigured; archival is
// best-effort.
func initServices() {
	servicesOnce.Do(func() {
		db := database.GetDB()
		receiptValidator = appstore.NewClientFromEnv()
		entitlementService = entitlement.NewServiceFromDB(db, receiptValidator)
		quotaEvaluator = quota.NewEvaluatorFromDB(db)

		if cfg, err := receiptarchive.LoadConfig(); err == nil && cfg.IsEnabled() {
			if client, cerr := receiptarchive.NewClient(cfg); cerr == nil {
				archiveClient = client
			}
		}
	})
}

// SetServicesForTesting replaces the service singletons; used by tests.
func SetServicesForTesting(es *entitlement.Service, qe *quota.Evaluator, rv entitlement.ReceiptValidator) {
	servicesOnce.Do(func() {})
	entitlementService = es
	quotaEvaluator = qe
	receiptValidator = rv
	archiveClient = nil
}

func getDB() *gorm.DB {
	return database.GetDB()
}

// requireUser resolves the authenticated user or writes a 401.
func requireUser(c *fiber.Ctx) (usercontext.UserContext, bool) {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn || user.UserID == 0 {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Missing or invalid authentication",
		})
		return usercontext.UserContext{}, false
	}
	return user, true
}

// parseAndValidate parses the JSON body into out and runs struct validation.
func parseAndValidate(c *fiber.Ctx, out interface{}) bool {
	if err := c.BodyParser(out); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "invalid request body",
		})
		return false
	}
	if err := validate.Struct(out); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": err.Error(),
		})
		return false
	}
	return true
}

// quotaDenied writes the standard quota-exceeded response. A fail-closed
// denial is indistinguishable from a reached limit here; the distinction
// lives in the logs.
func quotaDenied(c *fiber.Ctx, d quota.Decision) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":   "quota_exceeded",
		"message": "plan limit reached",
		"current": d.Current,
		"limit":   d.Limit,
	})
}
