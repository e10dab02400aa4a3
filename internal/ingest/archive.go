package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/wettermonitor/internal/models"
)

// archive files are named messwerte_<station>_<from>[-<to>].csv
var archiveName = regexp.MustCompile(`^messwerte_([a-z]+)_(\d{4})(?:-(\d{4}))?\.csv$`)

// archive column per stored field
var archiveColumns = map[string]models.Field{
	"air_temperature":         models.FieldAirTemperature,
	"water_temperature":       models.FieldWaterTemperature,
	"wind_speed_avg_10min":    models.FieldWindSpeed,
	"wind_force_avg_10min":    models.FieldWindForce,
	"wind_direction":          models.FieldWindDirection,
	"barometric_pressure_qfe": models.FieldBarometricPressure,
}

var archiveTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
}

// ArchiveSource lists and opens historic measurement files.
type ArchiveSource interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// ParseArchiveSource returns an FTPSource for ftp:// URLs and a DirSource for
// anything else.
func ParseArchiveSource(raw string) (ArchiveSource, error) {
	if raw == "" {
		return nil, errors.New("archive source is empty")
	}
	if !strings.HasPrefix(raw, "ftp://") {
		return DirSource{Dir: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse archive url: %w", err)
	}
	src := &FTPSource{Addr: u.Host, Dir: u.Path, User: "anonymous", Password: "anonymous"}
	if u.Port() == "" {
		src.Addr = u.Host + ":21"
	}
	if u.User != nil {
		src.User = u.User.Username()
		if p, ok := u.User.Password(); ok {
			src.Password = p
		}
	}
	if src.Dir == "" {
		src.Dir = "/"
	}
	return src, nil
}

type DirSource struct {
	Dir string
}

func (d DirSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && archiveName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(d.Dir, name))
}

type FTPSource struct {
	Addr     string
	Dir      string
	User     string
	Password string
}

func (f *FTPSource) dial(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(f.Addr, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	if err := conn.Login(f.User, f.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	return conn, nil
}

func (f *FTPSource) List(ctx context.Context) ([]string, error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.NameList(f.Dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := path.Base(e)
		if archiveName.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type ftpFile struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (f ftpFile) Close() error {
	err := f.Response.Close()
	f.conn.Quit()
	return err
}

func (f *FTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(path.Join(f.Dir, name))
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp retr %s: %w", name, err)
	}
	return ftpFile{Response: resp, conn: conn}, nil
}

// ArchiveStation returns the station encoded in an archive file name.
func ArchiveStation(name string) (string, bool) {
	m := archiveName.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseArchiveCSV reads one archive file. Columns are located by header name;
// rows with an unparseable timestamp are counted and skipped.
func ParseArchiveCSV(r io.Reader, station string) ([]models.Observation, *FetchResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	tsCol := -1
	cols := make(map[int]models.Field)
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "timestamp_utc" {
			tsCol = i
		}
		if f, ok := archiveColumns[name]; ok {
			cols[i] = f
		}
	}
	if tsCol < 0 {
		return nil, nil, errors.New("archive has no timestamp_utc column")
	}

	result := &FetchResult{}
	var obs []models.Observation
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return obs, result, fmt.Errorf("read row: %w", err)
		}
		if tsCol >= len(rec) {
			result.ParseErrors++
			continue
		}
		observedAt, err := parseArchiveTime(rec[tsCol])
		if err != nil {
			result.ParseErrors++
			result.ParseError = err.Error()
			continue
		}
		o := models.Observation{StationID: station, ObservedAt: observedAt}
		for i, f := range cols {
			if i >= len(rec) || rec[i] == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				continue
			}
			o.Set(f, sql.NullFloat64{Float64: v, Valid: true})
		}
		obs = append(obs, o)
	}
	result.RecordCount = len(obs)
	return obs, result, nil
}

func parseArchiveTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range archiveTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}
