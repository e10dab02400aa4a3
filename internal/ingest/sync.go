package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lox/wettermonitor/internal/metrics"
	"github.com/lox/wettermonitor/internal/models"
	"github.com/lox/wettermonitor/internal/store"
)

// ErrSyncInProgress is returned when another sync or import is running.
var ErrSyncInProgress = errors.New("sync already in progress")

const (
	defaultPageSize = 1000
	defaultBackfill = 14 * 24 * time.Hour
)

// Syncer keeps the store in step with the upstream API. At most one sync or
// archive import runs at a time.
type Syncer struct {
	store    *store.Store
	client   MeasurementFetcher
	stations []string
	backfill time.Duration
	pageSize int
	now      func() time.Time

	syncing atomic.Bool
}

func NewSyncer(s *store.Store, client MeasurementFetcher, stations []string, backfill time.Duration) *Syncer {
	if backfill <= 0 {
		backfill = defaultBackfill
	}
	return &Syncer{
		store:    s,
		client:   client,
		stations: stations,
		backfill: backfill,
		pageSize: defaultPageSize,
		now:      time.Now,
	}
}

func (s *Syncer) begin() bool {
	return s.syncing.CompareAndSwap(false, true)
}

func (s *Syncer) end() {
	s.syncing.Store(false)
}

// Syncing reports whether a sync or import is running.
func (s *Syncer) Syncing() bool {
	return s.syncing.Load()
}

// Refresh fetches everything newer than the store's last observation.
func (s *Syncer) Refresh(ctx context.Context) error {
	_, err := s.SyncLatest(ctx)
	return err
}

// SyncLatest fetches, per station, everything between the newest stored
// observation (or the backfill window) and now. Station failures do not stop
// the other stations; they are returned together.
func (s *Syncer) SyncLatest(ctx context.Context) (int, error) {
	if !s.begin() {
		return 0, ErrSyncInProgress
	}
	defer s.end()

	now := s.now().UTC()
	var total int
	var result *multierror.Error
	for _, station := range s.stations {
		n, err := s.syncStation(ctx, station, now)
		total += n
		if err != nil {
			log.Printf("sync: %s: %v", station, err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", station, err))
		}
	}

	err := result.ErrorOrNil()
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
	} else {
		metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
	}
	log.Printf("sync: stored %d observations", total)
	return total, err
}

func (s *Syncer) syncStation(ctx context.Context, station string, now time.Time) (int, error) {
	from := now.Add(-s.backfill)
	latest, ok, err := s.store.LatestObservedAt(ctx, station)
	if err != nil {
		return 0, err
	}
	if ok {
		from = latest.Add(time.Second)
	}
	if !from.Before(now) {
		return 0, nil
	}

	var stored int
	for offset := 0; ; offset += s.pageSize {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		n, fetched, err := s.syncPage(ctx, station, from, now, offset)
		stored += n
		if err != nil {
			return stored, err
		}
		if fetched < s.pageSize {
			return stored, nil
		}
	}
}

func (s *Syncer) syncPage(ctx context.Context, station string, from, to time.Time, offset int) (stored, fetched int, err error) {
	run, runErr := s.store.StartIngestRun(ctx, "tecdottir", "measurements", station)
	if runErr != nil {
		log.Printf("sync: start ingest run: %v", runErr)
	}
	defer s.completeRun(ctx, run, &stored, &err)

	obs, body, result, err := s.client.FetchMeasurements(ctx, station, from, to, s.pageSize, offset)
	if run != nil && result != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(result.HTTPStatus), Valid: result.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(result.ResponseSize), Valid: result.ResponseSize > 0}
		run.Parsed(result.RecordCount, result.ParseErrors)
	}
	if len(body) > 0 {
		p := store.RawPayload{Source: "tecdottir", Endpoint: "measurements", StationID: station, Body: body}
		if run != nil {
			p.RunID = run.ID
		}
		if _, perr := s.store.StoreRawPayload(ctx, p); perr != nil {
			log.Printf("sync: store raw payload: %v", perr)
		}
	}
	if err != nil {
		return 0, 0, err
	}

	// rows dropped by the parser still count towards the page
	fetched = len(obs)
	if result != nil {
		fetched = max(fetched, result.RecordCount+result.ParseErrors)
	}
	stored, err = s.insert(ctx, obs, station, "tecdottir")
	return stored, fetched, err
}

func (s *Syncer) completeRun(ctx context.Context, run *store.IngestRun, stored *int, err *error) {
	if run == nil {
		return
	}
	run.Finish(*stored, *err)
	if cerr := s.store.CompleteIngestRun(context.WithoutCancel(ctx), run); cerr != nil {
		log.Printf("sync: complete ingest run: %v", cerr)
	}
}

func (s *Syncer) insert(ctx context.Context, obs []models.Observation, station, source string) (int, error) {
	for i := range obs {
		obs[i].QCFlags = QualityFlagsToJSON(ValidateObservation(&obs[i]))
	}
	n, err := s.store.InsertObservations(ctx, obs)
	if err != nil {
		return 0, err
	}
	metrics.ObservationsIngested.WithLabelValues(station, source).Add(float64(n))
	return n, nil
}

// ImportArchive loads every historic file of src, optionally clearing the
// observations first, and then syncs the gap up to now.
func (s *Syncer) ImportArchive(ctx context.Context, src ArchiveSource, clean bool) (int, error) {
	if !s.begin() {
		return 0, ErrSyncInProgress
	}

	total, err := s.importArchive(ctx, src, clean)
	s.end()
	if err != nil {
		return total, err
	}

	n, err := s.SyncLatest(ctx)
	return total + n, err
}

func (s *Syncer) importArchive(ctx context.Context, src ArchiveSource, clean bool) (int, error) {
	if clean {
		log.Println("sync: clearing observations before import")
		if err := s.store.ClearObservations(ctx); err != nil {
			return 0, fmt.Errorf("clear observations: %w", err)
		}
	}

	names, err := src.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		log.Println("sync: archive source has no measurement files")
	}

	var total int
	var result *multierror.Error
	for _, name := range names {
		station, _ := ArchiveStation(name)
		n, err := s.importFile(ctx, src, name, station)
		total += n
		if err != nil {
			log.Printf("sync: import %s: %v", name, err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Printf("sync: imported %d observations from %s", n, name)
	}
	return total, result.ErrorOrNil()
}

func (s *Syncer) importFile(ctx context.Context, src ArchiveSource, name, station string) (stored int, err error) {
	run, runErr := s.store.StartIngestRun(ctx, "archive", name, station)
	if runErr != nil {
		log.Printf("sync: start ingest run: %v", runErr)
	}
	defer s.completeRun(ctx, run, &stored, &err)

	rc, err := src.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	obs, result, err := ParseArchiveCSV(rc, station)
	if run != nil && result != nil {
		run.Parsed(result.RecordCount, result.ParseErrors)
	}
	if err != nil {
		return 0, err
	}
	return s.insert(ctx, obs, station, "archive")
}
