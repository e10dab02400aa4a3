package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/wettermonitor/internal/metrics"
	"github.com/lox/wettermonitor/internal/models"
)

// ErrStoreUnavailable wraps any failure to reach or query the database.
var ErrStoreUnavailable = errors.New("observation store unavailable")

type Store struct {
	db    *sql.DB
	loc   *time.Location
	clock func() time.Time
}

func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc, clock: time.Now}
}

type Order int

const (
	Asc Order = iota
	Desc
)

func (o Order) sql() string {
	if o == Desc {
		return "DESC"
	}
	return "ASC"
}

// Query selects a window of observations. Stations are GLOB patterns (an empty
// list matches every station), Start and End are inclusive bounds on the
// normalized axis (zero means unbounded) and Limit caps rows per station.
type Query struct {
	Stations []string
	Fields   []models.Field
	Start    time.Time
	End      time.Time
	Order    Order
	Limit    int
}

// YearRange is an inclusive range of year offsets.
type YearRange struct {
	From int
	To   int
}

func unavailable(err error) error {
	metrics.StoreUnavailable.Inc()
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (s *Store) UpsertStation(st models.Station) error {
	_, err := s.db.Exec(`
		INSERT INTO stations (station_id, name, latitude, longitude, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			active = excluded.active
	`, st.StationID, st.Name, st.Latitude, st.Longitude, st.Active)
	return err
}

func (s *Store) GetActiveStations() ([]models.Station, error) {
	rows, err := s.db.Query(`SELECT station_id, name, latitude, longitude, active FROM stations WHERE active = TRUE ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.StationID, &st.Name, &st.Latitude, &st.Longitude, &st.Active); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// InsertObservations stores observations in one transaction. ObservedAt must be
// an absolute instant; duplicates per station and second are ignored. It
// returns the number of rows actually inserted.
func (s *Store) InsertObservations(ctx context.Context, obs []models.Observation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (station_id, observed_at, air_temperature, water_temperature, wind_speed, wind_force, wind_direction, barometric_pressure, qc_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, o := range obs {
		res, err := stmt.ExecContext(ctx, o.StationID, o.ObservedAt.Unix(), o.AirTemperature, o.WaterTemperature,
			o.WindSpeed, o.WindForce, o.WindDirection, o.BarometricPressure, o.QCFlags)
		if err != nil {
			return 0, fmt.Errorf("insert %s at %s: %w", o.StationID, o.ObservedAt.UTC().Format(time.RFC3339), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit observations: %w", err)
	}
	return inserted, nil
}

// LatestObservedAt returns the absolute instant of the newest observation of a
// station, or false when the station has none.
func (s *Store) LatestObservedAt(ctx context.Context, stationID string) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(observed_at) FROM observations WHERE station_id = ?`, stationID).Scan(&ts)
	if err != nil {
		return time.Time{}, false, unavailable(err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

func (s *Store) ClearObservations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM observations`)
	return err
}

// QueryWindow runs q and returns the matching observations with every
// timestamp normalized into the store's zone, sorted ascending.
func (s *Store) QueryWindow(ctx context.Context, q Query) (Window, error) {
	fields := q.Fields
	if len(fields) == 0 {
		fields = models.AllFields
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if !f.Valid() {
			return Window{}, fmt.Errorf("unknown field %q", f)
		}
		cols = append(cols, string(f))
	}

	var where []string
	var args []any
	if len(q.Stations) > 0 {
		var or []string
		for _, pattern := range q.Stations {
			or = append(or, "station_id GLOB ?")
			args = append(args, pattern)
		}
		where = append(where, "("+strings.Join(or, " OR ")+")")
	}
	if !q.Start.IsZero() {
		where = append(where, "observed_at >= ?")
		args = append(args, Instant(q.Start, s.loc).Unix())
	}
	if !q.End.IsZero() {
		where = append(where, "observed_at <= ?")
		args = append(args, Instant(q.End, s.loc).Unix())
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	colSQL := strings.Join(cols, ", ")
	order := q.Order.sql()
	var query string
	if q.Limit > 0 {
		query = fmt.Sprintf(`
			SELECT station_id, observed_at, %[1]s FROM (
				SELECT station_id, observed_at, %[1]s,
					ROW_NUMBER() OVER (PARTITION BY station_id ORDER BY observed_at %[2]s) AS rn
				FROM observations
				%[3]s
			)
			WHERE rn <= ?
			ORDER BY observed_at %[2]s, station_id
		`, colSQL, order, whereSQL)
		args = append(args, q.Limit)
	} else {
		query = fmt.Sprintf(`
			SELECT station_id, observed_at, %s
			FROM observations
			%s
			ORDER BY observed_at %s, station_id
		`, colSQL, whereSQL, order)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Window{}, unavailable(err)
	}
	defer rows.Close()

	var obs []models.Observation
	values := make([]sql.NullFloat64, len(fields))
	dest := make([]any, 0, len(fields)+2)
	for rows.Next() {
		var o models.Observation
		var ts int64
		dest = append(dest[:0], &o.StationID, &ts)
		for i := range values {
			values[i] = sql.NullFloat64{}
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return Window{}, fmt.Errorf("scan observation: %w", err)
		}
		o.ObservedAt = Normalize(time.Unix(ts, 0), s.loc)
		for i, f := range fields {
			o.Set(f, values[i])
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return Window{}, unavailable(err)
	}
	return NewWindow(obs), nil
}

// LatestAggregated aggregates the newest reading of every station that reported
// at the most recent timestamp. An empty or unreachable store yields an empty
// reading.
func (s *Store) LatestAggregated(ctx context.Context, stations []string, fields ...models.Field) models.AggregatedReading {
	w, err := s.QueryWindow(ctx, Query{Stations: stations, Fields: fields, Order: Desc, Limit: 1})
	if err != nil {
		log.Printf("store: latest aggregated: %v", err)
		return models.AggregatedReading{}
	}
	latest, ok := w.Latest()
	if !ok {
		return models.AggregatedReading{}
	}
	return latest.Aggregate(fields...)
}

// WindowAround returns [center-before, center+after] in ascending order.
func (s *Store) WindowAround(ctx context.Context, stations []string, center time.Time, before, after time.Duration, fields ...models.Field) (Window, error) {
	return s.QueryWindow(ctx, Query{
		Stations: stations,
		Fields:   fields,
		Start:    center.Add(-before),
		End:      center.Add(after),
		Order:    Asc,
	})
}

// HistoryWindow unions, for every year offset in years, the window around
// center shifted back by that many YearOffsets. Years are queried concurrently.
func (s *Store) HistoryWindow(ctx context.Context, stations []string, center time.Time, before, after time.Duration, years YearRange, fields ...models.Field) (Window, error) {
	if years.To < years.From {
		return Window{}, nil
	}
	chunks := make([]Window, years.To-years.From+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for y := years.From; y <= years.To; y++ {
		y := y
		idx := y - years.From
		shifted := center.Add(-time.Duration(y) * YearOffset)
		g.Go(func() error {
			w, err := s.WindowAround(gctx, stations, shifted, before, after, fields...)
			if err != nil {
				return fmt.Errorf("history year -%d: %w", y, err)
			}
			chunks[idx] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Window{}, err
	}
	return Merge(chunks...), nil
}
