package cron

import (
	"context"
	"sync"
	"time"

	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the prune every day at 04:00
const DefaultSchedule = "0 0 4 * * *"

// PruneFunc deletes history older than cutoff and reports how many rows went away
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// RetentionManager periodically prunes play history
type RetentionManager struct {
	cron      *cron.Cron
	cronEntry cron.EntryID
	prune     PruneFunc
	retention time.Duration
	schedule  string
	now       func() time.Time
	log       logging.Logger

	mutex     sync.RWMutex
	isRunning bool
	lastRun   time.Time
	lastCount int64
}

// NewRetentionManager creates a manager; call Start to schedule it
func NewRetentionManager(prune PruneFunc, retention time.Duration, schedule string, logger logging.Logger) *RetentionManager {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &RetentionManager{
		cron:      cron.New(cron.WithSeconds()),
		prune:     prune,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
		log:       logger,
	}
}

// Start schedules the prune job and runs it once in the background
func (rm *RetentionManager) Start() error {
	entryID, err := rm.cron.AddFunc(rm.schedule, rm.RunOnce)
	if err != nil {
		return err
	}
	rm.cronEntry = entryID
	rm.cron.Start()
	rm.log.Info("Scheduled history pruning",
		logging.String("schedule", rm.schedule),
		logging.Duration("retention", rm.retention))

	go rm.RunOnce()
	return nil
}

// RunOnce prunes history now unless a prune is already in progress
func (rm *RetentionManager) RunOnce() {
	rm.mutex.Lock()
	if rm.isRunning {
		rm.mutex.Unlock()
		rm.log.Debug("History prune already in progress, skipping")
		return
	}
	rm.isRunning = true
	rm.mutex.Unlock()

	defer func() {
		rm.mutex.Lock()
		rm.isRunning = false
		rm.mutex.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := rm.now().Add(-rm.retention)
	removed, err := rm.prune(ctx, cutoff)
	if err != nil {
		rm.log.Error("Failed to prune play history", logging.Err(err))
		return
	}

	rm.mutex.Lock()
	rm.lastRun = rm.now()
	rm.lastCount = removed
	rm.mutex.Unlock()

	rm.log.Info("Pruned play history", logging.Int("removed", int(removed)))
}

// Stop stops the cron scheduler and waits for a running prune
func (rm *RetentionManager) Stop() {
	<-rm.cron.Stop().Done()
	rm.log.Info("History retention manager stopped")
}

// NextRun returns the next scheduled run time
func (rm *RetentionManager) NextRun() time.Time {
	return rm.cron.Entry(rm.cronEntry).Next
}

// LastRun returns when the last successful prune finished and how many rows it removed
func (rm *RetentionManager) LastRun() (time.Time, int64) {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return rm.lastRun, rm.lastCount
}

// IsRunning returns whether a prune is currently in progress
func (rm *RetentionManager) IsRunning() bool {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return rm.isRunning
}

// Schedule returns the cron schedule
func (rm *RetentionManager) Schedule() string {
	return rm.schedule
}
