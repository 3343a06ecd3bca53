// Package apm wires the storage schema (C5) to the ingestion, error,
// trace, analytics, and deploy services that make up the query API
// surface (C10).
package apm

import "context"

// Transactor runs fn within a single storage transaction, committing on
// nil and rolling back on error or panic. Satisfied structurally by
// *database.gormTransactor; declared locally so this package does not
// depend on the infrastructure layer's constructor type.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
