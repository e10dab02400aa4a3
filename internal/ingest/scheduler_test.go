package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/lox/wettermonitor/internal/models"
)

func TestSchedulerSyncOnce_CallsOnSync(t *testing.T) {
	s := setupTestStore(t)
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{obs: map[string][]models.Observation{
		"mythenquai": series("mythenquai", now.Add(-time.Hour), 3),
	}}
	syncer := NewSyncer(s, fetcher, []string{"mythenquai"}, 24*time.Hour)
	syncer.now = func() time.Time { return now }

	sched := NewScheduler(s, syncer, time.Minute)
	calls := 0
	sched.OnSync = func(ctx context.Context) { calls++ }

	sched.syncOnce(context.Background())
	if calls != 1 {
		t.Fatalf("OnSync calls = %d, want 1", calls)
	}

	// nothing new upstream, no recompute
	sched.syncOnce(context.Background())
	if calls != 1 {
		t.Errorf("OnSync calls after empty sync = %d, want 1", calls)
	}
}

func TestSchedulerRun_StopsOnCancel(t *testing.T) {
	s := setupTestStore(t)
	syncer := NewSyncer(s, &fakeFetcher{}, []string{"mythenquai"}, time.Hour)
	sched := NewScheduler(s, syncer, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
