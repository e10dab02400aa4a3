package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/lox/wettermonitor/internal/store"
)

const (
	defaultSyncInterval     = 10 * time.Minute
	rawPayloadRetention     = 30 * 24 * time.Hour
	rawPayloadCleanupPeriod = 24 * time.Hour
)

// Scheduler runs the periodic sync and calls OnSync after each sync that
// stored new observations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	syncer    *Syncer
	store     *store.Store
	interval  time.Duration
	timeout   time.Duration

	OnSync func(ctx context.Context)
}

func NewScheduler(s *store.Store, syncer *Syncer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	return &Scheduler{
		scheduler: sched,
		syncer:    syncer,
		store:     s,
		interval:  interval,
		timeout:   5 * time.Minute,
	}
}

// Run schedules the jobs and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.scheduler.Every(s.interval).Do(s.syncOnce, ctx); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(rawPayloadCleanupPeriod).Do(s.cleanupPayloads, ctx); err != nil {
		return err
	}

	log.Printf("scheduler: syncing every %v", s.interval)
	s.scheduler.StartAsync()

	<-ctx.Done()
	log.Println("scheduler: shutting down")
	s.scheduler.Stop()
	return nil
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.syncer.SyncLatest(syncCtx)
	if errors.Is(err, ErrSyncInProgress) {
		log.Println("scheduler: sync already running, skipping")
		return
	}
	if err != nil {
		log.Printf("scheduler: sync: %v", err)
	}
	if n > 0 && s.OnSync != nil {
		s.OnSync(ctx)
	}
}

func (s *Scheduler) cleanupPayloads(ctx context.Context) {
	n, err := s.store.CleanupOldRawPayloads(ctx, rawPayloadRetention)
	if err != nil {
		log.Printf("scheduler: cleanup raw payloads: %v", err)
		return
	}
	if n > 0 {
		log.Printf("scheduler: removed %d raw payloads", n)
	}
}
