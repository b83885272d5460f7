// Package database manages the SQLite connection backing the deployment
// core's document collections.
//
// Each resource type is stored as a collection table with the document body
// in a JSON column; the internal/document package builds the conditional
// JSON updates on top of this connection. This package only owns the
// connection lifecycle and schema migrations.
//
// Migrations are embedded into the binary by the top-level migrations
// package and applied in version order, one transaction per migration.
package database
