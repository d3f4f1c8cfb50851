package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/metroad/leadops/internal/lead"
)

// SQLiteStore implements Store using modernc.org/sqlite. It has no spatial
// column; latitude and longitude are kept as plain values.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                       TEXT PRIMARY KEY,
	business_name            TEXT NOT NULL,
	road_address             TEXT NOT NULL DEFAULT '',
	lot_address              TEXT NOT NULL DEFAULT '',
	business_registration_id TEXT NOT NULL DEFAULT '',
	latitude                 REAL,
	longitude                REAL,
	coord_x                  REAL,
	coord_y                  REAL,
	nearest_station          TEXT NOT NULL DEFAULT '',
	station_distance_m       REAL,
	station_lines            TEXT NOT NULL DEFAULT '[]',
	phone                    TEXT NOT NULL DEFAULT '',
	medical_subject          TEXT NOT NULL DEFAULT '',
	category                 TEXT NOT NULL DEFAULT '',
	service_id               TEXT NOT NULL DEFAULT '',
	license_date             TEXT NOT NULL DEFAULT '',
	status                   TEXT NOT NULL DEFAULT 'new',
	created_at               DATETIME NOT NULL,
	updated_at               DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at, id);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_service_id ON leads(service_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var sqliteSelectLeads = "SELECT " + strings.Join(leadColumns, ", ") + " FROM leads"

func (s *SQLiteStore) ListLeads(ctx context.Context, filter ListFilter) ([]lead.Lead, error) {
	query := sqliteSelectLeads + " WHERE 1=1"
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ServiceID != "" {
		query += ` AND service_id = ?`
		args = append(args, filter.ServiceID)
	}
	query += ` ORDER BY created_at, id`

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	return scanLeadRows(rows)
}

func (s *SQLiteStore) GetLeads(ctx context.Context, ids []string) ([]lead.Lead, error) {
	if len(ids) == 0 {
		return []lead.Lead{}, nil
	}
	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, sqliteSelectLeads+" WHERE id IN ("+in+")", args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get leads")
	}
	leads, err := scanLeadRows(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(leads, ids), nil
}

func (s *SQLiteStore) ListKeys(ctx context.Context) ([]lead.KeyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_name, road_address, business_registration_id, created_at FROM leads ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list keys")
	}
	defer rows.Close()

	keys := []lead.KeyRecord{}
	for rows.Next() {
		var k lead.KeyRecord
		if err := rows.Scan(&k.ID, &k.BusinessName, &k.RoadAddress, &k.BusinessRegistrationID, &k.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: iterate keys")
}

func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []lead.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(leadColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO leads ("+strings.Join(leadColumns, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, l := range leads {
		l = prepareInsert(l, now)
		lines, err := marshalLines(l.StationLines)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			l.ID, l.BusinessName, l.RoadAddress, l.LotAddress, l.BusinessRegistrationID,
			l.Latitude, l.Longitude, l.CoordX, l.CoordY,
			l.NearestStation, l.StationDistance, lines,
			l.Phone, l.MedicalSubject, l.Category, l.ServiceID, l.LicenseDate,
			string(l.Status), l.CreatedAt.UTC(), l.UpdatedAt.UTC(),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert lead %s", l.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert")
	}
	return len(leads), nil
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, l lead.Lead) error {
	return updateSQLiteLead(ctx, s.db, l)
}

// MergeLeads rewrites merged and deletes removeIDs in one transaction.
func (s *SQLiteStore) MergeLeads(ctx context.Context, merged lead.Lead, removeIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := updateSQLiteLead(ctx, tx, merged); err != nil {
		return err
	}
	if len(removeIDs) > 0 {
		in, args := inClause(removeIDs)
		if _, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE id IN (`+in+`)`, args...); err != nil {
			return eris.Wrap(err, "sqlite: delete merged leads")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateSQLiteLead(ctx context.Context, ex sqlExecer, l lead.Lead) error {
	lines, err := marshalLines(l.StationLines)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, `UPDATE leads SET
		business_name = ?, road_address = ?, lot_address = ?, business_registration_id = ?,
		latitude = ?, longitude = ?, coord_x = ?, coord_y = ?,
		nearest_station = ?, station_distance_m = ?, station_lines = ?,
		phone = ?, medical_subject = ?, category = ?, service_id = ?, license_date = ?,
		status = ?, updated_at = ?
		WHERE id = ?`,
		l.BusinessName, l.RoadAddress, l.LotAddress, l.BusinessRegistrationID,
		l.Latitude, l.Longitude, l.CoordX, l.CoordY,
		l.NearestStation, l.StationDistance, lines,
		l.Phone, l.MedicalSubject, l.Category, l.ServiceID, l.LicenseDate,
		string(l.Status), time.Now().UTC(),
		l.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %s", l.ID)
	}
	return checkRowsAffected(res, "sqlite: update lead", l.ID)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status lead.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", id)
	}
	return checkRowsAffected(res, "sqlite: update status", id)
}

func (s *SQLiteStore) DeleteLeads(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inClause(ids)
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete leads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, action, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", action, id)
	}
	return nil
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

func marshalLines(lines []string) (string, error) {
	if len(lines) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal station lines")
	}
	return string(b), nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return lead.Float(v.Float64)
}

func scanLeadRows(rows *sql.Rows) ([]lead.Lead, error) {
	defer rows.Close()

	leads := []lead.Lead{}
	for rows.Next() {
		var (
			l                        lead.Lead
			status, lines            string
			lat, lon, x, y, distance sql.NullFloat64
		)
		if err := rows.Scan(
			&l.ID, &l.BusinessName, &l.RoadAddress, &l.LotAddress, &l.BusinessRegistrationID,
			&lat, &lon, &x, &y,
			&l.NearestStation, &distance, &lines,
			&l.Phone, &l.MedicalSubject, &l.Category, &l.ServiceID, &l.LicenseDate,
			&status, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		l.Latitude, l.Longitude = nullFloat(lat), nullFloat(lon)
		l.CoordX, l.CoordY = nullFloat(x), nullFloat(y)
		l.StationDistance = nullFloat(distance)
		l.Status = lead.Status(status)
		if lines != "" && lines != "[]" {
			if err := json.Unmarshal([]byte(lines), &l.StationLines); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal station lines")
			}
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}
