package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	payloadEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	payloadDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// RawPayload is an upstream response body kept for replay. RunID and
// StationID are optional.
type RawPayload struct {
	RunID     int64
	Source    string
	Endpoint  string
	StationID string
	Body      []byte
}

// StoreRawPayload compresses p.Body with zstd and stores it once per distinct
// body. A body already stored returns id 0.
func (s *Store) StoreRawPayload(ctx context.Context, p RawPayload) (int64, error) {
	hash := sha256.Sum256(p.Body)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_payloads
		(ingest_run_id, fetched_at, source, endpoint, station_id, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, sql.NullInt64{Int64: p.RunID, Valid: p.RunID > 0}, time.Now().UTC(), p.Source, p.Endpoint,
		sql.NullString{String: p.StationID, Valid: p.StationID != ""},
		payloadEncoder.EncodeAll(p.Body, nil), hex.EncodeToString(hash[:]))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, nil
	}
	return res.LastInsertId()
}

func (s *Store) GetRawPayload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).Scan(&compressed)
	if err != nil {
		return nil, err
	}
	out, err := payloadDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress payload %d: %w", id, err)
	}
	return out, nil
}

// CleanupOldRawPayloads deletes payloads fetched before now-retention.
func (s *Store) CleanupOldRawPayloads(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM raw_payloads WHERE fetched_at < ?`, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
