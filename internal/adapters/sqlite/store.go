// Package sqlite provides a SQLite-backed imaging database: datasets, their
// shared frame properties and the individual frames, queried through scoped
// read sessions.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/insitu/internal/adapters/sqlite/migrations"
	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

// Store is the imaging database.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the SQLite imaging database at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Session begins a transaction that only reads. Closing the session rolls it
// back, so a session never leaves changes behind.
func (s *Store) Session(ctx context.Context) (ports.Session, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	return &session{tx: tx}, nil
}

// Dataset is one acquisition to import: its serial, the properties shared by
// all its frames and the frames themselves. Frame.Global is ignored.
type Dataset struct {
	Serial      string
	Description string
	Microscope  string
	Global      domain.FrameGlobal
	Frames      []domain.Frame
}

// ImportDataset inserts a dataset with its frames in one transaction.
func (s *Store) ImportDataset(ctx context.Context, ds Dataset) (err error) {
	if strings.TrimSpace(ds.Serial) == "" {
		return fmt.Errorf("dataset serial is required")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO data_set (dataset_serial, description, microscope) VALUES (?, ?, ?)`,
		ds.Serial, ds.Description, ds.Microscope)
	if err != nil {
		return fmt.Errorf("insert dataset %s: %w", ds.Serial, err)
	}
	dsID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	g := ds.Global
	globalMeta, err := encodeMetadata(g.Metadata)
	if err != nil {
		return fmt.Errorf("encode dataset metadata: %w", err)
	}
	res, err = tx.ExecContext(ctx,
		`INSERT INTO frames_global (
		   data_set_id, s3_dir, nbr_frames, im_width, im_height, nbr_slices,
		   nbr_channels, im_colors, nbr_timepoints, nbr_positions, bit_depth, metadata_json
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dsID, g.StorageDir, len(ds.Frames), g.Width, g.Height, g.NbrSlices,
		g.NbrChannels, g.Colors, g.NbrTimepoints, g.NbrPositions, g.BitDepth, globalMeta)
	if err != nil {
		return fmt.Errorf("insert frames_global %s: %w", ds.Serial, err)
	}
	globalID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO frames (
		   frames_global_id, channel_idx, slice_idx, time_idx, pos_idx,
		   channel_name, file_name, sha256, metadata_json
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range ds.Frames {
		meta, err := encodeMetadata(f.Metadata)
		if err != nil {
			return fmt.Errorf("encode frame metadata %s: %w", f.FileName, err)
		}
		if _, err := stmt.ExecContext(ctx, globalID, f.ChannelIdx, f.SliceIdx, f.TimeIdx, f.PosIdx,
			f.ChannelName, f.FileName, f.SHA256, meta); err != nil {
			return fmt.Errorf("insert frame %s: %w", f.FileName, err)
		}
	}

	return tx.Commit()
}

type session struct {
	tx     *sql.Tx
	closed bool
}

const frameColumns = `
  f.channel_idx, f.slice_idx, f.time_idx, f.pos_idx, f.channel_name, f.file_name,
  f.sha256, f.metadata_json,
  d.dataset_serial,
  g.s3_dir, g.im_width, g.im_height, g.im_colors, g.bit_depth, g.nbr_positions,
  g.nbr_channels, g.nbr_slices, g.nbr_timepoints, g.metadata_json`

func (s *session) Frames(ctx context.Context, q domain.FrameQuery) ([]domain.Frame, error) {
	if s.closed {
		return nil, ports.ErrSessionClosed
	}
	if q.Slices != nil && len(q.Slices) == 0 {
		return nil, nil
	}

	query := `SELECT` + frameColumns + `
FROM frames f
JOIN frames_global g ON g.id = f.frames_global_id
JOIN data_set d ON d.id = g.data_set_id
WHERE d.dataset_serial = ? AND f.pos_idx = ? AND f.channel_name = ? AND f.time_idx = ?`
	args := []any{q.Dataset, q.Position, q.Channel, q.Time}
	if q.Slices != nil {
		query += ` AND f.slice_idx IN (?` + strings.Repeat(`, ?`, len(q.Slices)-1) + `)`
		for _, z := range q.Slices {
			args = append(args, z)
		}
	}
	query += ` ORDER BY f.slice_idx, f.id`

	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []domain.Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return out, nil
}

func scanFrame(rows *sql.Rows) (domain.Frame, error) {
	var (
		f                    domain.Frame
		frameMeta, globalMet string
	)
	g := &f.Global
	if err := rows.Scan(
		&f.ChannelIdx, &f.SliceIdx, &f.TimeIdx, &f.PosIdx, &f.ChannelName, &f.FileName,
		&f.SHA256, &frameMeta,
		&f.DatasetSerial,
		&g.StorageDir, &g.Width, &g.Height, &g.Colors, &g.BitDepth, &g.NbrPositions,
		&g.NbrChannels, &g.NbrSlices, &g.NbrTimepoints, &globalMet,
	); err != nil {
		return domain.Frame{}, fmt.Errorf("scan frame: %w", err)
	}
	var err error
	if f.Metadata, err = decodeMetadata(frameMeta); err != nil {
		return domain.Frame{}, fmt.Errorf("decode metadata of %s: %w", f.FileName, err)
	}
	if g.Metadata, err = decodeMetadata(globalMet); err != nil {
		return domain.Frame{}, fmt.Errorf("decode dataset metadata of %s: %w", f.DatasetSerial, err)
	}
	return f, nil
}

func (s *session) Datasets(ctx context.Context) ([]string, error) {
	if s.closed {
		return nil, ports.ErrSessionClosed
	}
	rows, err := s.tx.QueryContext(ctx, `SELECT dataset_serial FROM data_set ORDER BY dataset_serial`)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var serial string
		if err := rows.Scan(&serial); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, serial)
	}
	return out, rows.Err()
}

func (s *session) Positions(ctx context.Context, dataset string) ([]int, error) {
	if s.closed {
		return nil, ports.ErrSessionClosed
	}
	rows, err := s.tx.QueryContext(ctx, `SELECT DISTINCT f.pos_idx
FROM frames f
JOIN frames_global g ON g.id = f.frames_global_id
JOIN data_set d ON d.id = g.data_set_id
WHERE d.dataset_serial = ?
ORDER BY f.pos_idx`, dataset)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *session) Channels(ctx context.Context, dataset string) (map[int]string, error) {
	if s.closed {
		return nil, ports.ErrSessionClosed
	}
	rows, err := s.tx.QueryContext(ctx, `SELECT DISTINCT f.channel_idx, f.channel_name
FROM frames f
JOIN frames_global g ON g.id = f.frames_global_id
JOIN data_set d ON d.id = g.data_set_id
WHERE d.dataset_serial = ?
ORDER BY f.channel_idx`, dataset)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	out := map[int]string{}
	for rows.Next() {
		var (
			idx  int
			name string
		)
		if err := rows.Scan(&idx, &name); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out[idx] = name
	}
	return out, rows.Err()
}

// Close rolls the read transaction back.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("release session: %w", err)
	}
	return nil
}

func encodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var meta map[string]any
	if err := dec.Decode(&meta); err != nil {
		return nil, err
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, nil
}

var _ ports.FrameStore = (*Store)(nil)
