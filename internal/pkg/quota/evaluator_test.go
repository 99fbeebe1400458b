package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nebulanotes/nebula/app/models"
)

type fakeStore struct {
	plan     *models.SubscriptionPlan
	planErr  error
	freePlan *models.SubscriptionPlan
	freeErr  error

	notes     int64
	tasks     int64
	galaxies  int64
	insights  int64
	countErr  error
	gotSince  time.Time
	countCall int
}

func (f *fakeStore) ActiveEntitlementPlan(uint) (*models.SubscriptionPlan, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	if f.plan == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.plan, nil
}

func (f *fakeStore) PlanByName(string) (*models.SubscriptionPlan, error) {
	if f.freeErr != nil {
		return nil, f.freeErr
	}
	if f.freePlan == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.freePlan, nil
}

func (f *fakeStore) CountNotes(uint) (int64, error) {
	f.countCall++
	return f.notes, f.countErr
}

func (f *fakeStore) CountTasks(uint) (int64, error) {
	f.countCall++
	return f.tasks, f.countErr
}

func (f *fakeStore) CountGalaxies(uint) (int64, error) {
	f.countCall++
	return f.galaxies, f.countErr
}

func (f *fakeStore) CountAIInsightsSince(_ uint, since time.Time) (int64, error) {
	f.countCall++
	f.gotSince = since
	return f.insights, f.countErr
}

func TestCheckQuota_BoundaryIsStrict(t *testing.T) {
	store := &fakeStore{
		plan:  &models.SubscriptionPlan{Name: "Starter", NoteLimit: 5},
		notes: 4,
	}
	e := NewEvaluator(store)

	d := e.CheckQuota(context.Background(), 7, ResourceNote)
	assert.Equal(t, Decision{Allowed: true, Current: 4, Limit: 5}, d)

	store.notes = 5
	d = e.CheckQuota(context.Background(), 7, ResourceNote)
	assert.Equal(t, Decision{Allowed: false, Current: 5, Limit: 5}, d)
}

func TestCheckQuota_UnlimitedSkipsCounting(t *testing.T) {
	store := &fakeStore{
		plan:  &models.SubscriptionPlan{Name: "Pro", NoteLimit: models.UnlimitedLimit},
		notes: 9999,
	}
	e := NewEvaluator(store)

	d := e.CheckQuota(context.Background(), 7, ResourceNote)
	assert.Equal(t, Decision{Allowed: true, Current: 0, Limit: models.UnlimitedLimit}, d)
	assert.Equal(t, 0, store.countCall, "unlimited tiers never pay for a count query")
}

func TestCheckQuota_FallsBackToFreePlan(t *testing.T) {
	store := &fakeStore{
		freePlan: &models.SubscriptionPlan{Name: models.PlanFreeName, GalaxyLimit: 2},
		galaxies: 2,
	}
	e := NewEvaluator(store)

	d := e.CheckQuota(context.Background(), 7, ResourceGalaxy)
	assert.Equal(t, Decision{Allowed: false, Current: 2, Limit: 2}, d)
}

func TestCheckQuota_FallsBackToHardcodedDefaults(t *testing.T) {
	store := &fakeStore{notes: 1}
	e := NewEvaluator(store)

	d := e.CheckQuota(context.Background(), 7, ResourceNote)
	assert.True(t, d.Allowed)
	assert.Equal(t, fallbackNoteLimit, d.Limit)
	assert.Equal(t, 1, d.Current)
}

func TestCheckQuota_InsightWindowIsMidnightAnchored(t *testing.T) {
	store := &fakeStore{
		plan:     &models.SubscriptionPlan{Name: "Starter", AIInsightsPerDay: 10},
		insights: 3,
	}
	e := NewEvaluator(store)

	d := e.CheckQuota(context.Background(), 7, ResourceAIInsight)
	require.True(t, d.Allowed)
	assert.Equal(t, 3, d.Current)

	now := time.Now()
	wantStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	assert.Equal(t, wantStart, store.gotSince)
}

func TestCheckQuota_FailsClosedOnResolutionError(t *testing.T) {
	store := &fakeStore{planErr: errors.New("connection lost")}
	e := NewEvaluator(store)

	d := e.CheckQuota(context.Background(), 7, ResourceNote)
	assert.Equal(t, Decision{Allowed: false, Current: 0, Limit: 0}, d)
}

func TestCheckQuota_FailsClosedOnCountError(t *testing.T) {
	store := &fakeStore{
		plan:     &models.SubscriptionPlan{Name: "Starter", TaskLimit: 10},
		countErr: errors.New("connection lost"),
	}
	e := NewEvaluator(store)

	d := e.CheckQuota(context.Background(), 7, ResourceTask)
	assert.Equal(t, Decision{Allowed: false, Current: 0, Limit: 0}, d)
}

func TestCheckQuota_FailsClosedOnUnknownKind(t *testing.T) {
	store := &fakeStore{
		plan: &models.SubscriptionPlan{Name: "Starter", NoteLimit: 10},
	}
	e := NewEvaluator(store)

	d := e.CheckQuota(context.Background(), 7, ResourceKind("comet"))
	assert.Equal(t, Decision{Allowed: false, Current: 0, Limit: 0}, d)
}

func TestCheckQuota_MissingUserFailsClosed(t *testing.T) {
	e := NewEvaluator(&fakeStore{})
	d := e.CheckQuota(context.Background(), 0, ResourceNote)
	assert.Equal(t, Decision{Allowed: false, Current: 0, Limit: 0}, d)
}
