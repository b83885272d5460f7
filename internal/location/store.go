package location

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/idgen"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
)

// Store persists location records.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// NewStore creates a location store.
func NewStore(db *sql.DB, log *logging.Logger) *Store {
	return &Store{db: db, log: log.With("component", "location")}
}

// Create opens a new current location for the owner, closing the previous
// current record in the same transaction. The partial unique index on
// (owner_id) WHERE end_date IS NULL backs the invariant at the schema
// level; the transaction keeps the close-then-insert pair atomic.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Location, error) {
	if p.OwnerID == "" {
		return nil, apperr.BadRequest("location owner is required")
	}
	if len(p.Geometry) == 0 || !json.Valid(p.Geometry) {
		return nil, apperr.BadRequest("location geometry must be valid JSON")
	}
	start := p.StartDate
	if start.IsZero() {
		start = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Database("could not open location transaction", err)
	}
	defer tx.Rollback()

	startStr := start.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		UPDATE locations SET end_date = ?
		WHERE owner_id = ? AND end_date IS NULL`, startStr, p.OwnerID); err != nil {
		return nil, apperr.Database("could not close previous location", err)
	}

	loc := &Location{
		ID:        idgen.DeriveID(""),
		OwnerID:   p.OwnerID,
		Geometry:  p.Geometry,
		StartDate: start.UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO locations (id, owner_id, geometry, start_date)
		VALUES (?, ?, json(?), ?)`,
		loc.ID, loc.OwnerID, string(loc.Geometry), startStr); err != nil {
		return nil, apperr.Database("could not save location", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Database("could not commit location", err)
	}

	s.log.Debug("location opened", "owner", p.OwnerID, "id", loc.ID)
	return loc, nil
}

// Current returns the owner's open location record.
func (s *Store) Current(ctx context.Context, ownerID string) (*Location, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, geometry, start_date, end_date
		FROM locations WHERE owner_id = ? AND end_date IS NULL`, ownerID)

	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no current location for %q", ownerID)
	}
	if err != nil {
		return nil, apperr.Database("could not load location", err)
	}
	return loc, nil
}

// History returns the owner's location records, most recent first.
func (s *Store) History(ctx context.Context, ownerID string, limit, offset int) ([]Location, error) {
	query := `
		SELECT id, owner_id, geometry, start_date, end_date
		FROM locations WHERE owner_id = ?
		ORDER BY start_date DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database("could not query locations", err)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, apperr.Database("could not read location row", err)
		}
		locations = append(locations, *loc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("could not iterate locations", err)
	}
	return locations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(scanner rowScanner) (*Location, error) {
	var loc Location
	var geometry, startDate string
	var endDate sql.NullString

	if err := scanner.Scan(&loc.ID, &loc.OwnerID, &geometry, &startDate, &endDate); err != nil {
		return nil, err
	}

	loc.Geometry = json.RawMessage(geometry)

	var err error
	loc.StartDate, err = time.Parse(time.RFC3339Nano, startDate)
	if err != nil {
		return nil, err
	}
	if endDate.Valid {
		t, err := time.Parse(time.RFC3339Nano, endDate.String)
		if err != nil {
			return nil, err
		}
		loc.EndDate = &t
	}

	return &loc, nil
}
