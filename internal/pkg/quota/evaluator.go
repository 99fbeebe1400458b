package quota

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nebulanotes/nebula/app/models"
)

// ResourceKind names a quota-gated resource.
type ResourceKind string

const (
	ResourceNote      ResourceKind = "note"
	ResourceTask      ResourceKind = "task"
	ResourceGalaxy    ResourceKind = "galaxy"
	ResourceAIInsight ResourceKind = "aiInsight"
)

// Decision is the outcome of a quota check. Allowed is strict: a user sitting
// exactly at the limit is blocked from the next creation.
type Decision struct {
	Allowed bool `json:"allowed"`
	Current int  `json:"current"`
	Limit   int  `json:"limit"`
}

// Hardcoded free-tier limits, used only when the Free plan row itself is
// missing from the catalog.
const (
	fallbackNoteLimit        = 50
	fallbackTaskLimit        = 100
	fallbackGalaxyLimit      = 3
	fallbackAIInsightsPerDay = 5
)

// Store provides the reads the evaluator needs.
type Store interface {
	ActiveEntitlementPlan(userID uint) (*models.SubscriptionPlan, error)
	PlanByName(name string) (*models.SubscriptionPlan, error)
	CountNotes(userID uint) (int64, error)
	CountTasks(userID uint) (int64, error)
	CountGalaxies(userID uint) (int64, error)
	CountAIInsightsSince(userID uint, since time.Time) (int64, error)
}

// Evaluator is the read-side policy check consulted by every resource
// creation endpoint. Any resolution or counting failure degrades to a denial,
// never to an unmetered allow.
type Evaluator struct {
	store Store
}

// NewEvaluator creates an evaluator from an injected store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store}
}

// NewEvaluatorFromDB creates an evaluator backed by GORM.
func NewEvaluatorFromDB(db *gorm.DB) *Evaluator {
	return NewEvaluator(newGormStore(db))
}

// CheckQuota reports whether the user may create one more resource of the
// given kind.
func (e *Evaluator) CheckQuota(ctx context.Context, userID uint, kind ResourceKind) Decision {
	_ = ctx
	denied := Decision{Allowed: false, Current: 0, Limit: 0}

	if userID == 0 {
		return denied
	}

	limit, err := e.resolveLimit(userID, kind)
	if err != nil {
		log.Errorf("[Quota] limit resolution failed for user %d kind %s: %v", userID, kind, err)
		return denied
	}

	// Unlimited tiers never pay for a count query.
	if models.IsUnlimited(limit) {
		return Decision{Allowed: true, Current: 0, Limit: models.UnlimitedLimit}
	}

	current, err := e.countUsage(userID, kind)
	if err != nil {
		log.Errorf("[Quota] usage count failed for user %d kind %s: %v", userID, kind, err)
		return denied
	}

	return Decision{
		Allowed: int(current) < limit,
		Current: int(current),
		Limit:   limit,
	}
}

func (e *Evaluator) resolveLimit(userID uint, kind ResourceKind) (int, error) {
	plan, err := e.store.ActiveEntitlementPlan(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
		plan, err = e.store.PlanByName(models.PlanFreeName)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, err
			}
			return fallbackLimit(kind)
		}
	}

	switch kind {
	case ResourceNote:
		return plan.NoteLimit, nil
	case ResourceTask:
		return plan.TaskLimit, nil
	case ResourceGalaxy:
		return plan.GalaxyLimit, nil
	case ResourceAIInsight:
		return plan.AIInsightsPerDay, nil
	default:
		return 0, errors.New("unknown resource kind: " + string(kind))
	}
}

func fallbackLimit(kind ResourceKind) (int, error) {
	switch kind {
	case ResourceNote:
		return fallbackNoteLimit, nil
	case ResourceTask:
		return fallbackTaskLimit, nil
	case ResourceGalaxy:
		return fallbackGalaxyLimit, nil
	case ResourceAIInsight:
		return fallbackAIInsightsPerDay, nil
	default:
		return 0, errors.New("unknown resource kind: " + string(kind))
	}
}

func (e *Evaluator) countUsage(userID uint, kind ResourceKind) (int64, error) {
	switch kind {
	case ResourceNote:
		return e.store.CountNotes(userID)
	case ResourceTask:
		return e.store.CountTasks(userID)
	case ResourceGalaxy:
		return e.store.CountGalaxies(userID)
	case ResourceAIInsight:
		// The insight window is anchored to local midnight, not a rolling
		// 24 hours.
		return e.store.CountAIInsightsSince(userID, startOfDay(time.Now()))
	default:
		return 0, errors.New("unknown resource kind: " + string(kind))
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

type gormStore struct {
	db *gorm.DB
}

func newGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) ActiveEntitlementPlan(userID uint) (*models.SubscriptionPlan, error) {
	var e models.SubscriptionEntitlement
	err := s.db.Preload("Plan").
		Where("user_id = ? AND status = ?", userID, models.EntitlementStatusActive).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e.Plan, nil
}

func (s *gormStore) PlanByName(name string) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	err := s.db.Where("name = ?", name).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) CountNotes(userID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Note{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (s *gormStore) CountTasks(userID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Task{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (s *gormStore) CountGalaxies(userID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Galaxy{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (s *gormStore) CountAIInsightsSince(userID uint, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.AIInsight{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}
