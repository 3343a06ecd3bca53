// Package handlers holds the Gin HTTP handlers for ingestion and read
// endpoints over the APM service facade.
package handlers

// Handlers bundles every handler group the server wires into its routes.
type Handlers struct {
	Ingest *IngestHandler
	Read   *ReadHandler
	Health *HealthHandler
}
