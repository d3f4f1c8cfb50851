package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/metroad/leadops/internal/db"
	"github.com/metroad/leadops/internal/geo"
	"github.com/metroad/leadops/internal/lead"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects to connString and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	var maxConns, minConns int32
	if poolCfg != nil {
		maxConns, minConns = poolCfg.MaxConns, poolCfg.MinConns
	}
	pool, err := db.Connect(ctx, connString, maxConns, minConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS leads (
	id                       TEXT PRIMARY KEY,
	business_name            TEXT NOT NULL,
	road_address             TEXT NOT NULL DEFAULT '',
	lot_address              TEXT NOT NULL DEFAULT '',
	business_registration_id TEXT NOT NULL DEFAULT '',
	latitude                 DOUBLE PRECISION,
	longitude                DOUBLE PRECISION,
	coord_x                  DOUBLE PRECISION,
	coord_y                  DOUBLE PRECISION,
	location                 geometry(Point, 4326),
	nearest_station          TEXT NOT NULL DEFAULT '',
	station_distance_m       DOUBLE PRECISION,
	station_lines            TEXT[] NOT NULL DEFAULT '{}',
	phone                    TEXT NOT NULL DEFAULT '',
	medical_subject          TEXT NOT NULL DEFAULT '',
	category                 TEXT NOT NULL DEFAULT '',
	service_id               TEXT NOT NULL DEFAULT '',
	license_date             TEXT NOT NULL DEFAULT '',
	status                   TEXT NOT NULL DEFAULT 'new',
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at, id);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_service_id ON leads(service_id);
CREATE INDEX IF NOT EXISTS idx_leads_biz_id ON leads(business_registration_id) WHERE business_registration_id <> '';
CREATE INDEX IF NOT EXISTS idx_leads_location ON leads USING GIST(location);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var selectLeads = "SELECT " + strings.Join(leadColumns, ", ") + " FROM leads"

func (s *PostgresStore) ListLeads(ctx context.Context, filter ListFilter) ([]lead.Lead, error) {
	query := selectLeads + " WHERE 1=1"
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ServiceID != "" {
		args = append(args, filter.ServiceID)
		query += fmt.Sprintf(" AND service_id = $%d", len(args))
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	return collectLeads(rows)
}

func (s *PostgresStore) GetLeads(ctx context.Context, ids []string) ([]lead.Lead, error) {
	if len(ids) == 0 {
		return []lead.Lead{}, nil
	}
	rows, err := s.pool.Query(ctx, selectLeads+" WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get leads")
	}
	leads, err := collectLeads(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(leads, ids), nil
}

func (s *PostgresStore) ListKeys(ctx context.Context) ([]lead.KeyRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_name, road_address, business_registration_id, created_at FROM leads ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list keys")
	}
	defer rows.Close()

	keys := []lead.KeyRecord{}
	for rows.Next() {
		var k lead.KeyRecord
		if err := rows.Scan(&k.ID, &k.BusinessName, &k.RoadAddress, &k.BusinessRegistrationID, &k.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "postgres: iterate keys")
}

func (s *PostgresStore) InsertLeads(ctx context.Context, leads []lead.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	columns := append(append([]string{}, leadColumns...), "location")
	rows := make([][]any, 0, len(leads))
	for _, l := range leads {
		l = prepareInsert(l, now)

		var location []byte
		if l.HasCoordinates() {
			var err error
			location, err = geo.EncodePoint(*l.Latitude, *l.Longitude)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: encode location for %s", l.ID)
			}
		}

		lines := l.StationLines
		if lines == nil {
			lines = []string{}
		}
		rows = append(rows, []any{
			l.ID, l.BusinessName, l.RoadAddress, l.LotAddress, l.BusinessRegistrationID,
			l.Latitude, l.Longitude, l.CoordX, l.CoordY,
			l.NearestStation, l.StationDistance, lines,
			l.Phone, l.MedicalSubject, l.Category, l.ServiceID, l.LicenseDate,
			string(l.Status), l.CreatedAt, l.UpdatedAt,
			location,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "leads", columns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert leads")
	}
	return int(n), nil
}

func (s *PostgresStore) UpdateLead(ctx context.Context, l lead.Lead) error {
	return updatePostgresLead(ctx, s.pool, l)
}

// MergeLeads rewrites merged and deletes removeIDs in one transaction.
func (s *PostgresStore) MergeLeads(ctx context.Context, merged lead.Lead, removeIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := updatePostgresLead(ctx, tx, merged); err != nil {
		return err
	}
	if len(removeIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM leads WHERE id = ANY($1)`, removeIDs); err != nil {
			return eris.Wrap(err, "postgres: delete merged leads")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
}

// execer is satisfied by both db.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updatePostgresLead(ctx context.Context, ex execer, l lead.Lead) error {
	var location []byte
	if l.HasCoordinates() {
		var err error
		location, err = geo.EncodePoint(*l.Latitude, *l.Longitude)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode location for %s", l.ID)
		}
	}
	lines := l.StationLines
	if lines == nil {
		lines = []string{}
	}

	tag, err := ex.Exec(ctx, `UPDATE leads SET
		business_name = $1, road_address = $2, lot_address = $3, business_registration_id = $4,
		latitude = $5, longitude = $6, coord_x = $7, coord_y = $8, location = ST_GeomFromEWKB($9),
		nearest_station = $10, station_distance_m = $11, station_lines = $12,
		phone = $13, medical_subject = $14, category = $15, service_id = $16, license_date = $17,
		status = $18, updated_at = $19
		WHERE id = $20`,
		l.BusinessName, l.RoadAddress, l.LotAddress, l.BusinessRegistrationID,
		l.Latitude, l.Longitude, l.CoordX, l.CoordY, location,
		l.NearestStation, l.StationDistance, lines,
		l.Phone, l.MedicalSubject, l.Category, l.ServiceID, l.LicenseDate,
		string(l.Status), time.Now().UTC(),
		l.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %s", l.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update lead %s", l.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status lead.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update status %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteLeads(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete leads")
	}
	return int(tag.RowsAffected()), nil
}

func collectLeads(rows pgx.Rows) ([]lead.Lead, error) {
	defer rows.Close()

	leads := []lead.Lead{}
	for rows.Next() {
		var l lead.Lead
		var status string
		if err := rows.Scan(
			&l.ID, &l.BusinessName, &l.RoadAddress, &l.LotAddress, &l.BusinessRegistrationID,
			&l.Latitude, &l.Longitude, &l.CoordX, &l.CoordY,
			&l.NearestStation, &l.StationDistance, &l.StationLines,
			&l.Phone, &l.MedicalSubject, &l.Category, &l.ServiceID, &l.LicenseDate,
			&status, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l.Status = lead.Status(status)
		if len(l.StationLines) == 0 {
			l.StationLines = nil
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}
