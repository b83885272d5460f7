package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/urbanfield/deployment-core/internal/apperr"
)

// Record is the storage envelope around a resource document. The document
// body itself (label, placement fields, deployment membership) stays opaque
// JSON at this layer; entity packages marshal their own types in and out.
type Record struct {
	ID              string
	RegistrationKey string
	Doc             json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// Filter selects records by equality on top-level document fields, e.g.
// Filter{"isHostedBy": "buoy-3"}.
type Filter map[string]any

// Page bounds a Find result. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Option modifies read behaviour.
type Option func(*readOptions)

type readOptions struct {
	includeDeleted bool
}

// IncludeDeleted makes a read return soft-deleted records instead of
// reporting them as deleted.
func IncludeDeleted() Option {
	return func(o *readOptions) { o.includeDeleted = true }
}

// Collection provides document CRUD with soft-delete semantics over one
// SQLite table. All mutations are single conditional statements; the
// store's per-row atomic conditional update is the only concurrency
// control, there is no read-modify-write anywhere in this package.
type Collection struct {
	db    *sql.DB
	table string
	// name is the human-readable resource name used in error messages
	// ("sensor", "platform", ...).
	name string
}

// NewCollection returns a Collection over the given table. The table name
// is trusted (compile-time constants from entity packages), not caller
// input.
func NewCollection(db *sql.DB, table, name string) *Collection {
	return &Collection{db: db, table: table, name: name}
}

// Name returns the human-readable resource name of this collection.
func (c *Collection) Name() string {
	return c.name
}

// Insert stores a new record. The store sets CreatedAt/UpdatedAt. A
// duplicate live id surfaces as a Conflict error, distinguishable from
// validation and I/O failures.
func (c *Collection) Insert(ctx context.Context, rec Record) (*Record, error) {
	if rec.ID == "" {
		return nil, apperr.BadRequest("%s id must not be empty", c.name)
	}
	if len(rec.Doc) == 0 {
		rec.Doc = json.RawMessage("{}")
	}
	if !json.Valid(rec.Doc) {
		return nil, apperr.BadRequest("%s document is not valid JSON", c.name)
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (id, registration_key, doc, created_at, updated_at)
		VALUES (?, ?, json(?), ?, ?)`, c.table)

	_, err := c.db.ExecContext(ctx, query,
		rec.ID,
		nullableString(rec.RegistrationKey),
		string(rec.Doc),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperr.Conflict("%s %q already exists", c.name, rec.ID)
		}
		return nil, apperr.Database(fmt.Sprintf("could not save %s", c.name), err)
	}

	rec.CreatedAt = now
	rec.UpdatedAt = now
	return &rec, nil
}

// GetByID retrieves a record by id. Soft-deleted records are reported as an
// IsDeleted-kind NotFound carrying the deletion timestamp, unless
// IncludeDeleted is passed.
func (c *Collection) GetByID(ctx context.Context, id string, opts ...Option) (*Record, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	query := fmt.Sprintf(`
		SELECT id, registration_key, doc, created_at, updated_at, deleted_at
		FROM %s WHERE id = ?
		ORDER BY deleted_at IS NOT NULL, deleted_at DESC
		LIMIT 1`, c.table)

	rec, err := c.scanOne(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("%s %q not found", c.name, id)
		}
		return nil, apperr.Database(fmt.Sprintf("could not load %s", c.name), err)
	}

	if rec.DeletedAt != nil && !o.includeDeleted {
		return nil, apperr.Deleted(c.name, id, *rec.DeletedAt)
	}
	return rec, nil
}

// GetByRegistrationKey retrieves a live record by its registration key.
// Deleted records are never matched by key lookups: the key of a deleted
// resource is a dead secret.
func (c *Collection) GetByRegistrationKey(ctx context.Context, key string) (*Record, error) {
	query := fmt.Sprintf(`
		SELECT id, registration_key, doc, created_at, updated_at, deleted_at
		FROM %s WHERE registration_key = ? AND deleted_at IS NULL`, c.table)

	rec, err := c.scanOne(c.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("no %s with that registration key", c.name)
		}
		return nil, apperr.Database(fmt.Sprintf("could not load %s", c.name), err)
	}
	return rec, nil
}

// Find returns records matching equality conditions on top-level document
// fields, ordered by id. Soft-deleted records are excluded unless
// IncludeDeleted is passed.
func (c *Collection) Find(ctx context.Context, filter Filter, page Page, opts ...Option) ([]Record, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	where := []string{"1=1"}
	var args []any
	if !o.includeDeleted {
		where = []string{"deleted_at IS NULL"}
	}

	names := make([]string, 0, len(filter))
	for name := range filter {
		if !fieldName.MatchString(name) {
			return nil, apperr.BadRequest("invalid filter field %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		where = append(where, fmt.Sprintf("json_extract(doc, '$.%s') = ?", name))
		args = append(args, filter[name])
	}

	query := fmt.Sprintf(`
		SELECT id, registration_key, doc, created_at, updated_at, deleted_at
		FROM %s WHERE %s ORDER BY id`, c.table, strings.Join(where, " AND "))
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset)
	} else if page.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", page.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database(fmt.Sprintf("could not query %ss", c.name), err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := c.scanOne(rows)
		if err != nil {
			return nil, apperr.Database(fmt.Sprintf("could not read %s row", c.name), err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(fmt.Sprintf("could not iterate %ss", c.name), err)
	}
	return records, nil
}

// UpdateByID applies a patch to a live record as one atomic conditional
// statement: match id AND not deleted, then json_set/json_remove in place.
// Concurrent updates to the same record serialise at the store; lost
// updates cannot occur. Returns the updated record.
func (c *Collection) UpdateByID(ctx context.Context, id string, patch Patch) (*Record, error) {
	docExpr, args, err := buildDocExpr(patch)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %s SET doc = %s, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, c.table, docExpr)
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id)

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database(fmt.Sprintf("could not update %s", c.name), err)
	}
	if err := c.requireMatch(ctx, result, id); err != nil {
		return nil, err
	}

	return c.GetByID(ctx, id)
}

// SoftDelete marks a live record deleted and removes the given document
// fields in the same statement, so derived references never dangle on the
// tombstone. Deleting an already-deleted record reports IsDeleted.
func (c *Collection) SoftDelete(ctx context.Context, id string, clearFields ...string) error {
	docExpr, err := removeExpr(clearFields)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf(`
		UPDATE %s SET doc = %s, deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, c.table, docExpr)

	result, err := c.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return apperr.Database(fmt.Sprintf("could not delete %s", c.name), err)
	}
	return c.requireMatch(ctx, result, id)
}

// ClaimRegistration sets registeredAs on the live record holding the given
// registration key, but only when the field is currently unset: the claim
// is write-once until explicitly cleared. The check and the write are one
// conditional statement.
func (c *Collection) ClaimRegistration(ctx context.Context, key, registeredAs string) (*Record, error) {
	encoded, err := json.Marshal(registeredAs)
	if err != nil {
		return nil, apperr.BadRequest("invalid registration target: %v", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET doc = json_set(doc, '$.registeredAs', json(?)), updated_at = ?
		WHERE registration_key = ? AND deleted_at IS NULL
		  AND json_extract(doc, '$.registeredAs') IS NULL`, c.table)

	result, err := c.db.ExecContext(ctx, query,
		string(encoded), time.Now().UTC().Format(time.RFC3339Nano), key)
	if err != nil {
		return nil, apperr.Database(fmt.Sprintf("could not register %s", c.name), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, apperr.Database(fmt.Sprintf("could not register %s", c.name), err)
	}
	if n == 0 {
		// Distinguish a missing key from an already-claimed resource.
		rec, lookErr := c.GetByRegistrationKey(ctx, key)
		if lookErr != nil {
			return nil, lookErr
		}
		return nil, apperr.Forbidden("%s %q is already registered", c.name, rec.ID)
	}

	return c.GetByRegistrationKey(ctx, key)
}

// ClearRegistration removes registeredAs from a live record. Clearing an
// already-unregistered record still matches the row, so deregistration is
// idempotent; only a missing or deleted resource is an error.
func (c *Collection) ClearRegistration(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET doc = json_remove(doc, '$.registeredAs'), updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, c.table)

	result, err := c.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return apperr.Database(fmt.Sprintf("could not deregister %s", c.name), err)
	}
	return c.requireMatch(ctx, result, id)
}

// requireMatch classifies a zero-row conditional update: the id either
// never existed (NotFound) or names a soft-deleted record (IsDeleted).
func (c *Collection) requireMatch(ctx context.Context, result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Database(fmt.Sprintf("could not update %s", c.name), err)
	}
	if n > 0 {
		return nil
	}

	var deletedAt string
	err = c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT deleted_at FROM %s
		WHERE id = ? AND deleted_at IS NOT NULL
		ORDER BY deleted_at DESC LIMIT 1`, c.table), id).Scan(&deletedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound("%s %q not found", c.name, id)
	case err != nil:
		return apperr.Database(fmt.Sprintf("could not load %s", c.name), err)
	}

	at, perr := time.Parse(time.RFC3339Nano, deletedAt)
	if perr != nil {
		return apperr.Database(fmt.Sprintf("corrupt deleted_at on %s", c.name), perr)
	}
	return apperr.Deleted(c.name, id, at)
}

// rowScanner is satisfied by both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOne scans a single collection row into a Record.
func (c *Collection) scanOne(scanner rowScanner) (*Record, error) {
	var rec Record
	var regKey, deletedAt sql.NullString
	var doc, createdAt, updatedAt string

	if err := scanner.Scan(&rec.ID, &regKey, &doc, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	rec.Doc = json.RawMessage(doc)
	if regKey.Valid {
		rec.RegistrationKey = regKey.String
	}

	var err error
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing deleted_at: %w", err)
		}
		rec.DeletedAt = &t
	}

	return &rec, nil
}

// nullableString returns a sql.NullString for optional strings.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueConstraintError checks for a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
