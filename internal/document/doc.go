// Package document is the resource store adapter: document CRUD with
// soft-delete semantics over SQLite collection tables.
//
// Each resource type (sensor, platform, permanent host, deployment) is a
// Collection over one table. The document body is an opaque JSON column;
// entity packages own the shape. The envelope fields (id, registration
// key, timestamps, soft-delete marker) are real columns so the invariants
// live in the schema: a partial unique index keeps ids unique among live
// rows only.
//
// # Contract
//
//   - Reads exclude soft-deleted records unless IncludeDeleted is passed;
//     a read that hits a tombstone reports an IsDeleted-kind NotFound with
//     the deletion timestamp.
//   - Every mutation is a single conditional statement (match id AND not
//     deleted, then apply). There is no read-modify-write, so concurrent
//     callers cannot lose updates.
//   - A Patch field is Set or Unset explicitly; Unset removes the field
//     from the document, which is distinct from assigning JSON null.
//   - Failures are classified before leaving the package: duplicate live
//     id is Conflict, absent id is NotFound, tombstone is IsDeleted, and
//     any driver failure is a Database error whose raw detail is private.
package document
