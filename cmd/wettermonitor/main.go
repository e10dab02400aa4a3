package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/wettermonitor/internal/api"
	"github.com/lox/wettermonitor/internal/config"
	"github.com/lox/wettermonitor/internal/forecast"
	"github.com/lox/wettermonitor/internal/ingest"
	"github.com/lox/wettermonitor/internal/models"
	"github.com/lox/wettermonitor/internal/store"
)

var defaultStations = []models.Station{
	{StationID: "mythenquai", Name: "Mythenquai", Latitude: 47.3570, Longitude: 8.5364, Active: true},
	{StationID: "tiefenbrunnen", Name: "Tiefenbrunnen", Latitude: 47.3489, Longitude: 8.5589, Active: true},
}

type CLI struct {
	config.Config `embed:""`

	Serve         ServeCmd         `cmd:"" default:"1" help:"Sync, forecast and serve the JSON API (default)."`
	Sync          SyncCmd          `cmd:"" help:"Fetch the latest measurements once and exit."`
	ImportArchive ImportArchiveCmd `cmd:"" name:"import-archive" help:"Import historic measurement archives."`
	Forecast      ForecastCmd      `cmd:"" help:"Compute one forecast and print it as JSON."`
	Migrate       MigrateCmd       `cmd:"" help:"Apply database migrations and exit."`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wettermonitor"),
		kong.Description("Analog weather forecasts for the Zurich lake stations."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Config))
}

func openStore(cfg *config.Config) (*store.Store, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("load timezone: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("database migrated")

	for _, station := range defaultStations {
		if err := st.UpsertStation(station); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("upsert station %s: %w", station.StationID, err)
		}
	}
	return st, func() { db.Close() }, nil
}

func newSyncer(cfg *config.Config, st *store.Store) *ingest.Syncer {
	return ingest.NewSyncer(st, ingest.NewTecdottirClient(cfg.UpstreamURL), cfg.Stations, cfg.Backfill)
}

type ServeCmd struct {
	NoPoll bool `help:"Disable upstream polling (server only, for local dev)."`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var refresher forecast.Refresher
	syncer := newSyncer(cfg, st)
	if !c.NoPoll {
		refresher = syncer
	}
	svc := forecast.NewService(st, refresher, cfg.Forecast())

	if !c.NoPoll {
		scheduler := ingest.NewScheduler(st, syncer, cfg.SyncInterval)
		scheduler.OnSync = svc.Trigger
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				log.Printf("scheduler: %v", err)
			}
		}()
	} else {
		log.Println("polling disabled (--no-poll)")
	}
	go svc.Run(ctx)

	server := api.NewServer(st, svc, cfg.Port)
	log.Printf("starting server on :%s", cfg.Port)
	return server.Run(ctx)
}

type SyncCmd struct{}

func (c *SyncCmd) Run(cfg *config.Config) error {
	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	n, err := newSyncer(cfg, st).SyncLatest(ctx)
	log.Printf("stored %d observations", n)
	return err
}

type ImportArchiveCmd struct {
	Clean  bool   `help:"Delete all observations before importing."`
	Source string `arg:"" optional:"" help:"Directory or ftp:// URL (defaults to --archive-source)."`
}

func (c *ImportArchiveCmd) Run(cfg *config.Config) error {
	raw := c.Source
	if raw == "" {
		raw = cfg.ArchiveSource
	}
	src, err := ingest.ParseArchiveSource(raw)
	if err != nil {
		return err
	}

	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	n, err := newSyncer(cfg, st).ImportArchive(ctx, src, c.Clean)
	log.Printf("imported %d observations", n)
	return err
}

type ForecastCmd struct{}

func (c *ForecastCmd) Run(cfg *config.Config) error {
	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()
	svc := forecast.NewService(st, newSyncer(cfg, st), cfg.Forecast())
	svc.Recompute(ctx)

	snap := svc.Latest()
	if snap == nil {
		return errors.New("no forecast available")
	}
	trend := svc.PressureTrend(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		api.ForecastView
		PressureTrend forecast.PressureTrend `json:"pressure_trend"`
		Symbol        string                 `json:"symbol"`
	}{api.NewForecastView(snap, st.Location()), trend, trend.Symbol()})
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(cfg *config.Config) error {
	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	v, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	log.Printf("schema at version %d", v)
	return nil
}
