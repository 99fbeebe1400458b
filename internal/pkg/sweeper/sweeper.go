package sweeper

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nebulanotes/nebula/app/models"
	"github.com/nebulanotes/nebula/internal/pkg/cache"
)

const (
	sweepInterval = 24 * time.Hour
	lockKey       = "sweeper:completed-tasks"
	lockTTL       = 10 * time.Minute

	// Completed tasks are kept for one day so clients can still show them
	// before they disappear.
	completedRetention = 24 * time.Hour
)

// Start launches the daily cleanup loop in a background goroutine. A Redis
// lock keeps multiple instances from sweeping at the same time.
func Start(db *gorm.DB) {
	go run(db)
}

func run(db *gorm.DB) {
	// Sweep once at startup, then on the daily ticker.
	sweep(db)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		sweep(db)
	}
}

func sweep(db *gorm.DB) {
	acquired, err := cache.AcquireLock(lockKey, lockTTL)
	if err != nil {
		log.Errorf("[Sweeper] failed to acquire lock: %v", err)
		return
	}
	if !acquired {
		log.Debug("[Sweeper] another instance holds the lock, skipping")
		return
	}
	defer func() {
		if err := cache.ReleaseLock(lockKey); err != nil {
			log.Warnf("[Sweeper] failed to release lock: %v", err)
		}
	}()

	cutoff := time.Now().Add(-completedRetention)
	result := db.Where("status = ? AND completed_at IS NOT NULL AND completed_at < ?",
		models.TaskStatusCompleted, cutoff).
		Delete(&models.Task{})
	if result.Error != nil {
		log.Errorf("[Sweeper] failed to delete completed tasks: %v", result.Error)
		return
	}

	if result.RowsAffected > 0 {
		log.Infof("[Sweeper] removed %d completed tasks older than %s", result.RowsAffected, completedRetention)
	}
}
