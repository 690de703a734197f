// internal/store/store.go
//
// MySQL persistence for CRM records.
//
// Context
// -------
// The reference backend keeps every entity in one table:
//
//	crm_record (id CHAR(36) PK, entity, unique_key, data JSON,
//	            created_at, updated_at, UNIQUE(entity, unique_key))
//
// unique_key holds the normalised value of the entity’s unique field (for
// example the lowercased lead email) or NULL when the entity has none.  The
// database enforces uniqueness; a duplicate-key error is surfaced as
// ErrConflict so handlers can answer 409.
//
// Notes
// -----
// • IDs are random UUIDs generated here, never by clients.
// • Oxford commas, two spaces after periods.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Sentinel errors returned by Store methods.
var (
	ErrNotFound = errors.New("store: record not found")
	ErrConflict = errors.New("store: unique value already in use")
)

// mysqlDuplicateKey is ER_DUP_ENTRY.
const mysqlDuplicateKey = 1062

// Schema creates the record table.  Applied by Migrate.
const Schema = `CREATE TABLE IF NOT EXISTS crm_record (
  id          CHAR(36)     NOT NULL PRIMARY KEY,
  entity      VARCHAR(64)  NOT NULL,
  unique_key  VARCHAR(320) NULL,
  data        JSON         NOT NULL,
  created_at  DATETIME(6)  NOT NULL,
  updated_at  DATETIME(6)  NOT NULL,
  UNIQUE KEY uq_crm_record_entity_key (entity, unique_key),
  KEY ix_crm_record_entity (entity)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

const (
	qInsert = `INSERT INTO crm_record (id, entity, unique_key, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	qUpdate = `UPDATE crm_record SET unique_key = ?, data = ?, updated_at = ? WHERE entity = ? AND id = ?`
	qGet    = `SELECT id, entity, data, created_at, updated_at FROM crm_record WHERE entity = ? AND id = ?`
	qExists = `SELECT COUNT(*) FROM crm_record WHERE entity = ? AND LOWER(JSON_UNQUOTE(JSON_EXTRACT(data, ?))) = ?`
	qKey    = `SELECT COUNT(*) FROM crm_record WHERE entity = ? AND unique_key = ?`
)

// Record is one stored entity.
type Record struct {
	ID        string
	Entity    string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

type recordRow struct {
	ID        string    `db:"id"`
	Entity    string    `db:"entity"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store is safe for concurrent use.
type Store struct {
	db    *sqlx.DB
	now   func() time.Time
	newID func() string
}

// New wraps db.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Migrate creates the table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// NormalizeKey is the unique_key form of a raw value: trimmed and
// lowercased, "" for blank.
func NormalizeKey(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

// Create inserts a record.  uniqueKey "" stores NULL.
func (s *Store) Create(ctx context.Context, entity, uniqueKey string, data map[string]any) (Record, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("store: encode %s: %w", entity, err)
	}
	now := s.now()
	rec := Record{ID: s.newID(), Entity: entity, Data: data, CreatedAt: now, UpdatedAt: now}

	_, err = s.db.ExecContext(ctx, qInsert, rec.ID, entity, nullable(uniqueKey), raw, now, now)
	if err != nil {
		return Record{}, mapErr("create", entity, err)
	}
	return rec, nil
}

// Update replaces data and unique key of an existing record.
func (s *Store) Update(ctx context.Context, entity, id, uniqueKey string, data map[string]any) (Record, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("store: encode %s: %w", entity, err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, qUpdate, nullable(uniqueKey), raw, now, entity, id)
	if err != nil {
		return Record{}, mapErr("update", entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("store: update %s: %w", entity, err)
	}
	if n == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, entity, id)
}

// Get loads one record.
func (s *Store) Get(ctx context.Context, entity, id string) (Record, error) {
	var row recordRow
	if err := s.db.GetContext(ctx, &row, qGet, entity, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("store: get %s/%s: %w", entity, id, err)
	}
	rec := Record{ID: row.ID, Entity: row.Entity, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
	if err := json.Unmarshal(row.Data, &rec.Data); err != nil {
		return Record{}, fmt.Errorf("store: decode %s/%s: %w", entity, id, err)
	}
	return rec, nil
}

// Exists reports whether any record of entity holds value in field,
// ignoring case.  The unique field is answered from the indexed key.
func (s *Store) Exists(ctx context.Context, entity, field, value string, unique bool) (bool, error) {
	var n int
	var err error
	if unique {
		err = s.db.GetContext(ctx, &n, qKey, entity, NormalizeKey(value))
	} else {
		err = s.db.GetContext(ctx, &n, qExists, entity, "$."+field, NormalizeKey(value))
	}
	if err != nil {
		return false, fmt.Errorf("store: exists %s.%s: %w", entity, field, err)
	}
	return n > 0, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mapErr(op, entity string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateKey {
		return ErrConflict
	}
	return fmt.Errorf("store: %s %s: %w", op, entity, err)
}
